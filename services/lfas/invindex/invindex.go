// Package invindex implements the on-disk inverted index: a map from
// (field, term) to a posting list, backed by a storage.Backend, with
// buffered writes that are merged and flushed as a single atomic batch.
package invindex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rprado/lfas/services/lfas/field"
	"github.com/rprado/lfas/services/lfas/postings"
	"github.com/rprado/lfas/services/lfas/storage"
)

// keyPrefix is the inverted-index key-space reservation from
// SPEC_FULL.md §4.3: "idx/" ++ field_tag_byte ++ "/" ++ token_bytes.
const keyPrefix = "idx/"

// termKey identifies one (field, token) posting list.
type termKey struct {
	fieldTag field.Tag
	token    string
}

func (k termKey) storageKey() []byte {
	buf := make([]byte, 0, len(keyPrefix)+1+1+len(k.token))
	buf = append(buf, keyPrefix...)
	buf = append(buf, k.fieldTag.Byte())
	buf = append(buf, '/')
	buf = append(buf, k.token...)
	return buf
}

// Index is the inverted index: it buffers append()s in memory and
// commits them as one storage batch per flush(), per the write
// discipline in SPEC_FULL.md §4.4.
//
// Thread Safety:
//
//	Index is not safe for concurrent Append/Flush calls from multiple
//	goroutines; the engine serializes writers per its single-writer
//	discipline. Lookup uses the backend's own read-transaction snapshot
//	and may be called concurrently with other Lookups.
type Index struct {
	backend storage.Backend
	logger  *slog.Logger

	// buffered accumulates (docID -> tf) additions per term key, across
	// however many AddDocument calls happen before the next flush.
	buffered map[termKey]map[uint32]uint32
}

// New returns an Index backed by backend.
func New(backend storage.Backend, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		backend:  backend,
		logger:   logger,
		buffered: make(map[termKey]map[uint32]uint32),
	}
}

// Append buffers an addition to the (fieldTag, token) posting list. It
// does not touch storage; the addition is only visible to Lookup after
// the next successful Flush.
func (idx *Index) Append(docID uint32, fieldTag field.Tag, token string, tf uint32) {
	k := termKey{fieldTag: fieldTag, token: token}
	m, ok := idx.buffered[k]
	if !ok {
		m = make(map[uint32]uint32)
		idx.buffered[k] = m
	}
	m[docID] += tf
}

// Pending returns the number of buffered (field, token) keys awaiting
// flush — used by the engine to decide when to auto-flush at batch_size.
func (idx *Index) Pending() int {
	return len(idx.buffered)
}

// Flush groups buffered additions by (field, token), reads any existing
// posting list for each key, merges (summing tf for a doc_id recurring
// within the buffer, per the write discipline), reserializes, and writes
// every affected key plus any extraEntries in one storage batch. extra
// lets callers (the engine) fold metadata's own snapshot entry into the
// same atomic batch, satisfying invariant 3.
//
// Flush leaves the buffer intact on failure, so a failed flush can be
// retried without losing buffered work.
func (idx *Index) Flush(ctx context.Context, extra ...storage.KV) error {
	if len(idx.buffered) == 0 && len(extra) == 0 {
		return nil
	}
	start := time.Now()

	keys := make([]termKey, 0, len(idx.buffered))
	for k := range idx.buffered {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].fieldTag != keys[j].fieldTag {
			return keys[i].fieldTag < keys[j].fieldTag
		}
		return keys[i].token < keys[j].token
	})

	entries := make([]storage.KV, 0, len(keys)+len(extra))
	for _, k := range keys {
		storageKey := k.storageKey()
		existingData, found, err := idx.backend.Get(storageKey)
		if err != nil {
			return fmt.Errorf("invindex: reading existing posting list for field=%s token=%q: %w", k.fieldTag, k.token, err)
		}
		var existing *postings.List
		if found {
			existing, err = postings.Deserialize(existingData)
			if err != nil {
				return fmt.Errorf("invindex: corrupt posting list for field=%s token=%q: %w", k.fieldTag, k.token, err)
			}
		}
		merged := postings.Merge(existing, idx.buffered[k])
		entries = append(entries, storage.KV{Key: storageKey, Value: merged.Serialize()})
	}
	entries = append(entries, extra...)

	if err := idx.backend.PutBatch(ctx, entries); err != nil {
		return fmt.Errorf("invindex: flush of %d keys: %w", len(entries), err)
	}

	idx.logger.Info("invindex flushed",
		slog.Int("keys", len(keys)),
		slog.Duration("elapsed", time.Since(start)),
	)
	idx.buffered = make(map[termKey]map[uint32]uint32)
	return nil
}

// Lookup returns the posting list for (fieldTag, token) from txn, or an
// empty list if absent.
func Lookup(txn storage.ReadTxn, fieldTag field.Tag, token string) (*postings.List, error) {
	k := termKey{fieldTag: fieldTag, token: token}
	data, found, err := txn.Get(k.storageKey())
	if err != nil {
		return nil, fmt.Errorf("invindex: lookup field=%s token=%q: %w", fieldTag, token, err)
	}
	if !found {
		return postings.New(), nil
	}
	list, err := postings.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("invindex: corrupt posting list for field=%s token=%q: %w", fieldTag, token, err)
	}
	return list, nil
}
