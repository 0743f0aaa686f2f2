// Package store holds the bbolt-backed persistence for messages,
// notifications and the read-side directory used for enrichment. Records
// are JSON-encoded; keys are built so a forward cursor walk yields
// creation order.
package store

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("record not found")

// keySep separates key segments; it cannot appear in IDs or timestamps.
const keySep = byte(0x00)

// OpenDB opens (or creates) the database file at path.
func OpenDB(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
}

// timeKey renders a timestamp as a fixed-width, lexically sortable segment.
func timeKey(t time.Time) []byte {
	const width = 20
	buf := make([]byte, width)
	n := uint64(t.UnixNano())
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return buf
}

func compositeKey(segments ...[]byte) []byte {
	size := 0
	for _, s := range segments {
		size += len(s) + 1
	}
	key := make([]byte, 0, size)
	for i, s := range segments {
		if i > 0 {
			key = append(key, keySep)
		}
		key = append(key, s...)
	}
	return key
}
