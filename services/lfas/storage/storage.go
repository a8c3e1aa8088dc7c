// Package storage defines the key/value persistence contract LFAS builds
// on, and provides two implementations: a Badger-backed persistent store
// and an in-memory ordered map for tests.
//
// Description:
//
//	The engine is generic over Backend rather than switching on a
//	concrete type at runtime (SPEC_FULL.md §9's "Dynamic dispatch" note),
//	so adding a third backend never requires touching engine code.
package storage

import "context"

// KV is one key/value pair as returned by ScanPrefix, in key-sorted
// order.
type KV struct {
	Key   []byte
	Value []byte
}

// ReadTxn is a consistent snapshot bound to the lifetime of a single read
// (typically one Search call spanning both retrieval rounds).
type ReadTxn interface {
	// Get returns the value for key, and false if key is absent.
	Get(key []byte) ([]byte, bool, error)

	// ScanPrefix streams every (key, value) pair whose key starts with
	// prefix, in ascending key order.
	ScanPrefix(prefix []byte) ([]KV, error)

	// Discard releases the snapshot. Discard must be called exactly once,
	// typically via defer immediately after BeginRead returns.
	Discard()
}

// Backend is the key/value persistence contract shared by the Badger-
// backed persistent store and the in-memory test store.
type Backend interface {
	// Get reads a single key outside of any explicit read transaction.
	Get(key []byte) ([]byte, bool, error)

	// PutBatch writes every (key, value) pair atomically: either all
	// writes land, or none do.
	PutBatch(ctx context.Context, entries []KV) error

	// ScanPrefix streams every (key, value) pair whose key starts with
	// prefix, in ascending key order, outside of any explicit read
	// transaction.
	ScanPrefix(prefix []byte) ([]KV, error)

	// BeginRead opens a consistent read snapshot.
	BeginRead() (ReadTxn, error)

	// Sync flushes durable writes to stable storage.
	Sync() error

	// Close releases all resources held by the backend.
	Close() error
}
