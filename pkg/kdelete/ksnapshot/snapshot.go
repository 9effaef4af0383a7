// Package ksnapshot encodes the coordinator's in-memory state (queued
// topics, ineligible set, partition count) into compressed bytes for
// operator diagnostics, and decodes them back. It does not schedule
// snapshots or write files itself. A snapshot is never authoritative:
// the durable store remains the only source of truth (I4), and a
// snapshot that disagrees with the store is simply stale, not wrong in
// a way that needs reconciling.
//
// Two codecs are supported, selectable the same way franz-go lets a
// producer pick a compression codec per batch: zstd by default, with
// lz4 available for embedders who already standardized on it for other
// pipelines.
package ksnapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// State is the serializable snapshot of coordinator-owned sets.
type State struct {
	TakenAt               time.Time
	Queued                []QueuedTopic
	Ineligible            []string
	PartitionsToBeDeleted int
}

// QueuedTopic is one entry of topics_to_be_deleted.
type QueuedTopic struct {
	Topic      string
	EnqueuedAt time.Time
}

// Codec compresses a gob-encoded snapshot for storage.
type Codec interface {
	Name() string
	Compress(plain []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// Zstd is the default Codec, backed by klauspost/compress/zstd.
type Zstd struct{}

func (Zstd) Name() string { return "zstd" }

func (Zstd) Compress(plain []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("ksnapshot: new zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(plain, nil), nil
}

func (Zstd) Decompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ksnapshot: new zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("ksnapshot: zstd decode: %w", err)
	}
	return out, nil
}

// LZ4 is an alternate Codec, backed by pierrec/lz4/v4.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("ksnapshot: lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ksnapshot: lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZ4) Decompress(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ksnapshot: lz4 read: %w", err)
	}
	return out, nil
}

// Encode gob-encodes and compresses s with codec.
func Encode(s State, codec Codec) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("ksnapshot: encode: %w", err)
	}
	return codec.Compress(buf.Bytes())
}

// Decode reverses Encode.
func Decode(data []byte, codec Codec) (State, error) {
	var s State
	plain, err := codec.Decompress(data)
	if err != nil {
		return s, err
	}
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&s); err != nil {
		return s, fmt.Errorf("ksnapshot: decode: %w", err)
	}
	return s, nil
}
