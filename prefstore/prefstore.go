// Package prefstore implements the durable key-value store backing the
// application preferences. Values are stored as raw JSON so the store
// itself stays schema-agnostic; typed access lives in the settings
// package.
package prefstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// StoreName is the name of the durable mapping this service owns.
const StoreName = "app_preferences"

var ErrStoreClosed = errors.New("preference store is closed")

// Snapshot is an immutable view of the full key-value store at a point
// in time. Snapshots handed out by a Store must not be mutated; use
// Clone first.
type Snapshot map[string]json.RawMessage

func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		o, ok := other[k]
		if !ok || !bytes.Equal(v, o) {
			return false
		}
	}
	return true
}

// Transform produces the next snapshot from the current one. It receives
// a private copy and may mutate it in place.
type Transform func(Snapshot) (Snapshot, error)

// Store is a durable key-value mapping with change notification.
type Store interface {
	// Read returns the currently persisted snapshot.
	Read(ctx context.Context) (Snapshot, error)

	// Mutate applies a transform as a single transaction and returns
	// the committed snapshot. Mutations are serialized; concurrent
	// callers never observe or produce partial writes.
	Mutate(ctx context.Context, fn Transform) (Snapshot, error)

	// Subscribe returns a channel of snapshots. The first snapshot
	// reflects the persisted state at subscription time; a new one is
	// delivered after every committed mutation, conflated to the
	// latest when the consumer is slower than the writers. The cancel
	// func ends the subscription and closes the channel.
	Subscribe(ctx context.Context) (<-chan Snapshot, func(), error)
}
