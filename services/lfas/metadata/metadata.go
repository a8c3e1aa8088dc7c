// Package metadata implements the per-field document-length statistics
// store: doc_count, total_length, avg_length, and the per-document length
// vector that the BM25F scorer normalizes against.
package metadata

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rprado/lfas/services/lfas/field"
	"github.com/rprado/lfas/services/lfas/storage"
)

// snapshotKey is where the full metadata snapshot is mirrored inside the
// storage backend, under the "meta/" key-space reservation. Writing it in
// the same PutBatch as a flush's posting-list entries is what gives
// invariant 3 ("metadata counters update atomically with the posting list
// writes of the same document") its atomicity.
const snapshotKey = "meta/snapshot"

// magic and version identify the on-disk metadata.bin snapshot format
// from SPEC_FULL.md §6.
const (
	magic          = "LFAS\x01"
	currentVersion = uint32(1)
)

// perField holds the raw counters for one field tag.
type perField struct {
	docCount     uint32
	totalLength  uint64
	perDocLength []uint32 // dense, indexed by doc_id
}

// Store records per-field document-count, total-length, and per-document
// length statistics, and the engine's next doc_id.
//
// Thread Safety:
//
//	Store is safe for concurrent use. A single RWMutex guards all fields;
//	callers needing atomicity across several Record calls (an entire
//	document's worth of fields) should hold the engine's own write
//	discipline around the whole AddDocument call, then Persist once.
type Store struct {
	mu     sync.RWMutex
	fields [field.Count]perField
	nextID uint32
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// NextDocID returns the doc_id that would be assigned to the next
// document added.
func (s *Store) NextDocID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

// ReserveDocID atomically hands out the next doc_id and advances the
// counter. Called once per AddDocument, under the engine's single-writer
// discipline.
func (s *Store) ReserveDocID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

// RecordFieldLength updates doc_count and total_length for fieldTag and
// sets per_doc_length[docID] = length. length is the number of tokens
// written to that field's postings for this document (the sum of tfs),
// per invariant 4. A length of 0 means the field was absent and is a
// no-op, since per_doc_length already defaults to 0 for any doc_id never
// recorded.
func (s *Store) RecordFieldLength(fieldTag field.Tag, docID uint32, length uint32) {
	if length == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pf := &s.fields[fieldTag]
	if int(docID) >= len(pf.perDocLength) {
		grown := make([]uint32, docID+1)
		copy(grown, pf.perDocLength)
		pf.perDocLength = grown
	}
	if pf.perDocLength[docID] == 0 {
		pf.docCount++
	} else {
		pf.totalLength -= uint64(pf.perDocLength[docID])
	}
	pf.perDocLength[docID] = length
	pf.totalLength += uint64(length)
}

// DocCount returns metadata.doc_count[f].
func (s *Store) DocCount(fieldTag field.Tag) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields[fieldTag].docCount
}

// TotalLength returns metadata.total_length[f].
func (s *Store) TotalLength(fieldTag field.Tag) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields[fieldTag].totalLength
}

// AvgLength returns metadata.avg_length[f]: total_length / doc_count, or
// 0 if doc_count is 0.
func (s *Store) AvgLength(fieldTag field.Tag) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pf := s.fields[fieldTag]
	if pf.docCount == 0 {
		return 0
	}
	return float64(pf.totalLength) / float64(pf.docCount)
}

// FieldLength returns per_doc_length[f][docID], or 0 if the field was
// absent for that document.
func (s *Store) FieldLength(fieldTag field.Tag, docID uint32) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pf := s.fields[fieldTag]
	if int(docID) >= len(pf.perDocLength) {
		return 0
	}
	return pf.perDocLength[docID]
}

// snapshot encodes the full metadata state in the SPEC_FULL.md §6 format:
//
//	magic "LFAS\x01", u32 version, per-field {tag:u8, doc_count:u32,
//	total_length:u64, per_doc_length: length-prefixed u32 vector},
//	u32 next_doc_id.
func (s *Store) snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := len(magic) + 4 // magic + version
	for i := range s.fields {
		size += 1 + 4 + 8 + 4 + 4*len(s.fields[i].perDocLength)
	}
	size += 4 // next_doc_id

	buf := make([]byte, 0, size)
	buf = append(buf, magic...)
	buf = appendU32(buf, currentVersion)

	for i := range s.fields {
		pf := &s.fields[i]
		buf = append(buf, byte(i))
		buf = appendU32(buf, pf.docCount)
		buf = appendU64(buf, pf.totalLength)
		buf = appendU32(buf, uint32(len(pf.perDocLength)))
		for _, v := range pf.perDocLength {
			buf = appendU32(buf, v)
		}
	}
	buf = appendU32(buf, s.nextID)
	return buf
}

// loadSnapshot decodes bytes produced by snapshot back into s, replacing
// its entire state.
func (s *Store) loadSnapshot(data []byte) error {
	if len(data) < len(magic)+4 {
		return fmt.Errorf("metadata: truncated snapshot header")
	}
	if string(data[:len(magic)]) != magic {
		return fmt.Errorf("metadata: bad magic %q", data[:len(magic)])
	}
	off := len(magic)
	version := readU32(data[off:])
	off += 4
	if version != currentVersion {
		return fmt.Errorf("metadata: unsupported snapshot version %d", version)
	}

	var fields [field.Count]perField
	for i := 0; i < field.Count; i++ {
		if off+1 > len(data) {
			return fmt.Errorf("metadata: truncated record for field index %d", i)
		}
		tag := int(data[off])
		off++
		if tag != i {
			return fmt.Errorf("metadata: field record out of order: want %d, got %d", i, tag)
		}
		if off+4+8+4 > len(data) {
			return fmt.Errorf("metadata: truncated record body for field %d", i)
		}
		docCount := readU32(data[off:])
		off += 4
		totalLength := readU64(data[off:])
		off += 8
		n := readU32(data[off:])
		off += 4
		if off+4*int(n) > len(data) {
			return fmt.Errorf("metadata: truncated per_doc_length vector for field %d", i)
		}
		perDoc := make([]uint32, n)
		for j := 0; j < int(n); j++ {
			perDoc[j] = readU32(data[off:])
			off += 4
		}
		fields[i] = perField{docCount: docCount, totalLength: totalLength, perDocLength: perDoc}
	}

	if off+4 > len(data) {
		return fmt.Errorf("metadata: truncated next_doc_id")
	}
	nextID := readU32(data[off:])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
	s.nextID = nextID
	return nil
}

// Persist writes the full metadata snapshot into backend under the
// reserved meta/snapshot key. Callers that need metadata and posting-list
// writes to land in the same atomic batch (invariant 3) should include
// this entry alongside the index's own flush entries in a single
// PutBatch call instead of calling Persist directly; Persist is provided
// for standalone use. The engine itself never calls Persist: every
// Engine.Flush folds Entry into the inverted index's own batch.
func (s *Store) Persist(ctx context.Context, backend storage.Backend) error {
	if err := backend.PutBatch(ctx, []storage.KV{{Key: []byte(snapshotKey), Value: s.snapshot()}}); err != nil {
		return fmt.Errorf("metadata: persisting snapshot: %w", err)
	}
	return nil
}

// Entry returns the (key, value) pair a caller should fold into its own
// PutBatch to persist metadata atomically with other writes.
func (s *Store) Entry() storage.KV {
	return storage.KV{Key: []byte(snapshotKey), Value: s.snapshot()}
}

// Load reads the metadata snapshot back from backend. found is false if
// no snapshot has ever been persisted (a freshly created store).
func Load(backend storage.Backend) (*Store, bool, error) {
	data, found, err := backend.Get([]byte(snapshotKey))
	if err != nil {
		return nil, false, fmt.Errorf("metadata: reading snapshot: %w", err)
	}
	if !found {
		return New(), false, nil
	}
	s := New()
	if err := s.loadSnapshot(data); err != nil {
		return nil, false, fmt.Errorf("metadata: %w", err)
	}
	return s, true, nil
}

// ExportFile writes the metadata snapshot to <dir>/metadata.bin, the
// human/tool-inspectable on-disk layout from SPEC_FULL.md §6, alongside
// Badger's own data files in the same directory.
func (s *Store) ExportFile(dir string) error {
	path := filepath.Join(dir, "metadata.bin")
	if err := os.WriteFile(path, s.snapshot(), 0o644); err != nil {
		return fmt.Errorf("metadata: writing %s: %w", path, err)
	}
	return nil
}

// ImportFile reads <dir>/metadata.bin if present. found is false if the
// file does not exist.
func ImportFile(dir string) (store *Store, found bool, err error) {
	path := filepath.Join(dir, "metadata.bin")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("metadata: reading %s: %w", path, err)
	}
	s := New()
	if err := s.loadSnapshot(data); err != nil {
		return nil, false, fmt.Errorf("metadata: %s: %w", path, err)
	}
	return s, true, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func readU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
