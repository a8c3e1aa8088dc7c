// Package postings implements the compact per-term posting list: a
// compressed document-id bitmap paired with a dense, doc-id-ordered term
// frequency vector.
package postings

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// entry is one (doc_id, tf) pair.
type entry struct {
	docID uint32
	tf    uint32
}

// List is a posting list for a single (field, term) key: the set of
// document ids containing the term in that field, plus the per-document
// term frequency, ordered by doc_id ascending.
//
// Description:
//
//	The doc-id set is held twice: once as a roaring.Bitmap for fast
//	union/intersection/membership (Round 1 candidate selection), and once
//	as a dense doc-id-ordered tf vector that TermFrequency binary-searches
//	(O(log n) per candidate) during Round 2 scoring. The bitmap is never serialized on its own — it is
//	reconstructed from the doc-id vector on Deserialize, so the on-disk
//	format stays a stable u32-triple layout regardless of which bitmap
//	library backs the in-memory representation.
//
// Thread Safety:
//
//	List is not safe for concurrent mutation. The inverted index owns
//	synchronization around buffered appends and flush-time merges.
type List struct {
	bitmap  *roaring.Bitmap
	entries []entry // sorted by docID ascending, no duplicates
}

// New returns an empty posting list.
func New() *List {
	return &List{bitmap: roaring.New()}
}

// Add appends a (doc_id, tf) pair. Callers (the inverted index's flush
// path) are responsible for calling Add in doc_id-ascending order and for
// never passing a doc_id already present — Add panics on either
// violation, since both are internal invariants enforced by the caller,
// not user input.
func (l *List) Add(docID uint32, tf uint32) {
	if l.bitmap == nil {
		l.bitmap = roaring.New()
	}
	if len(l.entries) > 0 && docID <= l.entries[len(l.entries)-1].docID {
		panic(fmt.Sprintf("postings: Add called out of order or with duplicate doc_id %d", docID))
	}
	l.entries = append(l.entries, entry{docID: docID, tf: tf})
	l.bitmap.Add(docID)
}

// DocFrequency returns the number of documents in the list (the bitmap
// cardinality).
func (l *List) DocFrequency() int {
	if l.bitmap == nil {
		return 0
	}
	return int(l.bitmap.GetCardinality())
}

// Bitmap returns the underlying compressed doc-id bitmap, for use in
// Round-1 candidate unions. Callers must not mutate the returned bitmap.
func (l *List) Bitmap() *roaring.Bitmap {
	if l.bitmap == nil {
		return roaring.New()
	}
	return l.bitmap
}

// TermFrequency returns the in-posting term frequency for docID, and
// whether docID is present in the list at all.
func (l *List) TermFrequency(docID uint32) (uint32, bool) {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].docID >= docID })
	if i < len(l.entries) && l.entries[i].docID == docID {
		return l.entries[i].tf, true
	}
	return 0, false
}

// Iter calls fn for every (doc_id, tf) pair in ascending doc_id order.
func (l *List) Iter(fn func(docID uint32, tf uint32)) {
	for _, e := range l.entries {
		fn(e.docID, e.tf)
	}
}

// Merge combines additional (doc_id, tf) pairs into the list, summing tf
// when a doc_id recurs, and returns a new list with entries re-sorted by
// doc_id. Used by the inverted index's flush path to merge buffered
// additions with any existing on-disk posting list for the same key.
func Merge(existing *List, additions map[uint32]uint32) *List {
	merged := make(map[uint32]uint32, len(additions))
	if existing != nil {
		existing.Iter(func(docID uint32, tf uint32) {
			merged[docID] += tf
		})
	}
	for docID, tf := range additions {
		merged[docID] += tf
	}

	docIDs := make([]uint32, 0, len(merged))
	for docID := range merged {
		docIDs = append(docIDs, docID)
	}
	sort.Slice(docIDs, func(i, j int) bool { return docIDs[i] < docIDs[j] })

	out := New()
	for _, docID := range docIDs {
		out.Add(docID, merged[docID])
	}
	return out
}

// Serialize encodes the list in a stable, byte-exact format:
//
//	u32 little-endian: N (number of entries)
//	N × u32 little-endian: doc_ids ascending
//	N × u32 little-endian: tfs in same order
func (l *List) Serialize() []byte {
	n := len(l.entries)
	buf := make([]byte, 4+8*n)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	for i, e := range l.entries {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], e.docID)
	}
	off := 4 + 4*n
	for i, e := range l.entries {
		binary.LittleEndian.PutUint32(buf[off+4*i:off+4+4*i], e.tf)
	}
	return buf
}

// Deserialize decodes a posting list produced by Serialize. The bitmap is
// reconstructed from the decoded doc-id vector.
func Deserialize(data []byte) (*List, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("postings: truncated header, got %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	want := 4 + 8*int(n)
	if len(data) != want {
		return nil, fmt.Errorf("postings: length mismatch for %d entries: want %d bytes, got %d", n, want, len(data))
	}

	l := New()
	l.entries = make([]entry, n)
	docOff := 4
	tfOff := 4 + 4*int(n)
	var prev uint32
	for i := 0; i < int(n); i++ {
		docID := binary.LittleEndian.Uint32(data[docOff+4*i : docOff+4+4*i])
		tf := binary.LittleEndian.Uint32(data[tfOff+4*i : tfOff+4+4*i])
		if i > 0 && docID <= prev {
			return nil, fmt.Errorf("postings: doc_ids not strictly increasing at index %d (%d <= %d)", i, docID, prev)
		}
		prev = docID
		l.entries[i] = entry{docID: docID, tf: tf}
		l.bitmap.Add(docID)
	}
	return l, nil
}

// Union computes the bitmap union of doc ids across all given lists,
// using roaring's fast parallel-friendly Or. Used for Round-1 candidate
// set construction across multiple (field, distinctive-term) postings.
func Union(lists []*List) *roaring.Bitmap {
	bitmaps := make([]*roaring.Bitmap, 0, len(lists))
	for _, l := range lists {
		if l != nil {
			bitmaps = append(bitmaps, l.Bitmap())
		}
	}
	return roaring.FastOr(bitmaps...)
}
