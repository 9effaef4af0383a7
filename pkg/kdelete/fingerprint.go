package kdelete

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"
)

// fingerprint identifies one (topic, enqueue time) pair. enqueue uses it
// to tell a genuine duplicate delivery of the same intent marker (same
// topic, same creation time, safe to drop per P6) apart from the
// anomalous case of the same topic name reappearing with a different
// enqueue time while still queued, which the caller should log rather
// than silently accept, since deletion_enqueue_time is supposed to be
// stable for the lifetime of a queued topic (I4).
func fingerprint(topic string, enqueuedAt time.Time) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only errors on a bad key, and we pass none
	}
	h.Write([]byte(topic))
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(enqueuedAt.UnixNano()))
	h.Write(tb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
