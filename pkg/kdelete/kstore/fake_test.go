package kstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeCreateIntentMarkerFansOutToWatchers(t *testing.T) {
	f := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.Watch(ctx)
	require.NoError(t, err)

	f.SeedTopic("orders")
	at, err := f.CreateIntentMarker(ctx, "orders")
	require.NoError(t, err)

	select {
	case change := <-ch:
		require.Len(t, change.NewTopics, 1)
		require.Equal(t, "orders", change.NewTopics[0].Topic)
		require.True(t, at.Equal(change.NewTopics[0].EnqueuedAt))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch notification")
	}

	require.True(t, f.HasIntentMarker("orders"))
	require.True(t, f.HasTopicMetadata("orders"))
	require.True(t, f.HasTopicConfig("orders"))
}

func TestFakeTeardownRemovesEachPathIndependently(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.SeedTopic("orders")
	_, err := f.CreateIntentMarker(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, f.DeleteTopicMetadata(ctx, "orders"))
	require.False(t, f.HasTopicMetadata("orders"))
	require.True(t, f.HasTopicConfig("orders"))
	require.True(t, f.HasIntentMarker("orders"))

	require.NoError(t, f.DeleteTopicConfig(ctx, "orders"))
	require.False(t, f.HasTopicConfig("orders"))
	require.True(t, f.HasIntentMarker("orders"))

	require.NoError(t, f.DeleteIntentMarker(ctx, "orders"))
	require.False(t, f.HasIntentMarker("orders"))
}

func TestFakeDeleteIntentMarkerMissingErrors(t *testing.T) {
	f := NewFake()
	require.Error(t, f.DeleteIntentMarker(context.Background(), "nope"))
}
