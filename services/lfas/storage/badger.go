package storage

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// DefaultMapSize is the default Badger map-size budget in bytes (10 GiB),
// per SPEC_FULL.md §6's configuration surface.
const DefaultMapSize = 10 * 1 << 30

// BadgerOptions configures the persistent Backend.
type BadgerOptions struct {
	// Path is the directory Badger opens its data and lock files under.
	Path string

	// MapSize is the byte budget used to scale Badger's value-log and
	// in-memory table sizing. Default: DefaultMapSize.
	MapSize int64

	// Logger receives diagnostic output. Badger's own internal logging is
	// suppressed in favor of this structured logger.
	Logger *slog.Logger
}

// Badger is a memory-mapped, copy-on-write, transactional persistent
// Backend, implemented on top of github.com/dgraph-io/badger/v4. Badger
// gives single-writer/many-reader semantics and consistent snapshot
// reads out of the box.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens (creating if necessary) a persistent Backend at
// opts.Path.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("storage: badger path must not be empty")
	}
	mapSize := opts.MapSize
	if mapSize <= 0 {
		mapSize = DefaultMapSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil). // suppress Badger's internal logger; we log via slog ourselves
		WithValueLogFileSize(clampValueLogSize(mapSize)).
		WithMemTableSize(clampMemTableSize(mapSize))

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("storage: opening badger at %s: %w", opts.Path, err)
	}

	logger.Info("storage opened", slog.String("path", opts.Path), slog.Int64("map_size", mapSize))
	return &Badger{db: db, logger: logger}, nil
}

// clampValueLogSize derives a Badger value-log file size from the
// configured map-size budget, staying within Badger's own [1MB, 2GB)
// acceptable range.
func clampValueLogSize(mapSize int64) int64 {
	v := mapSize / 10
	const min = 16 << 20
	const max = (2 << 30) - 1
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// clampMemTableSize derives a Badger in-memory table size from the
// configured map-size budget.
func clampMemTableSize(mapSize int64) int64 {
	v := mapSize / 100
	const min = 8 << 20
	const max = 256 << 20
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (b *Badger) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %q: %w", key, err)
	}
	return out, true, nil
}

func (b *Badger) PutBatch(_ context.Context, entries []KV) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.Set(e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: put_batch of %d entries: %w", len(entries), err)
	}
	return nil
}

func (b *Badger) ScanPrefix(prefix []byte) ([]KV, error) {
	var out []KV
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, KV{Key: key, Value: val})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan_prefix %q: %w", prefix, err)
	}
	return out, nil
}

func (b *Badger) BeginRead() (ReadTxn, error) {
	return &badgerTxn{txn: b.db.NewTransaction(false)}, nil
}

func (b *Badger) Sync() error {
	if err := b.db.Sync(); err != nil {
		return fmt.Errorf("storage: sync: %w", err)
	}
	return nil
}

func (b *Badger) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

// badgerTxn adapts a read-only *badger.Txn to the ReadTxn interface,
// giving a Search call one consistent snapshot across both retrieval
// rounds.
type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(key []byte) ([]byte, bool, error) {
	item, err := t.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %q: %w", key, err)
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, fmt.Errorf("storage: copy value for %q: %w", key, err)
	}
	return v, true, nil
}

func (t *badgerTxn) ScanPrefix(prefix []byte) ([]KV, error) {
	var out []KV
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("storage: scan_prefix %q: %w", prefix, err)
		}
		out = append(out, KV{Key: key, Value: val})
	}
	return out, nil
}

func (t *badgerTxn) Discard() {
	t.txn.Discard()
}
