package ksnapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, codec := range []Codec{Zstd{}, LZ4{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			want := State{
				TakenAt:               time.Unix(1700000000, 0).UTC(),
				Queued:                []QueuedTopic{{Topic: "orders", EnqueuedAt: time.Unix(1699999000, 0).UTC()}},
				Ineligible:            []string{"orders"},
				PartitionsToBeDeleted: 3,
			}

			data, err := Encode(want, codec)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			got, err := Decode(data, codec)
			require.NoError(t, err)
			require.Equal(t, want.Queued, got.Queued)
			require.Equal(t, want.Ineligible, got.Ineligible)
			require.Equal(t, want.PartitionsToBeDeleted, got.PartitionsToBeDeleted)
			require.True(t, want.TakenAt.Equal(got.TakenAt))
		})
	}
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	_, err := Decode([]byte("not a real snapshot"), Zstd{})
	require.Error(t, err)
}
