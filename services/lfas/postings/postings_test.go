package postings

import (
	"bytes"
	"testing"
)

func TestAddAndLookup(t *testing.T) {
	l := New()
	l.Add(0, 3)
	l.Add(2, 1)
	l.Add(5, 7)

	if got := l.DocFrequency(); got != 3 {
		t.Fatalf("DocFrequency() = %d, want 3", got)
	}

	tf, ok := l.TermFrequency(2)
	if !ok || tf != 1 {
		t.Fatalf("TermFrequency(2) = (%d, %v), want (1, true)", tf, ok)
	}

	if _, ok := l.TermFrequency(3); ok {
		t.Fatalf("TermFrequency(3) = found, want not found")
	}

	if !l.Bitmap().Contains(5) {
		t.Fatalf("expected bitmap to contain doc 5")
	}
}

func TestAddOutOfOrderPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-order Add")
		}
	}()
	l := New()
	l.Add(5, 1)
	l.Add(2, 1)
}

func TestSerializeRoundTrip(t *testing.T) {
	l := New()
	l.Add(0, 1)
	l.Add(1, 5)
	l.Add(9, 2)

	data := l.Serialize()
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if got.DocFrequency() != l.DocFrequency() {
		t.Fatalf("doc frequency mismatch: %d vs %d", got.DocFrequency(), l.DocFrequency())
	}

	// Byte-for-byte re-serialization.
	if !bytes.Equal(got.Serialize(), data) {
		t.Fatalf("re-serialized bytes differ from original")
	}
}

func TestDeserializeRejectsTruncated(t *testing.T) {
	if _, err := Deserialize([]byte{1, 2}); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestDeserializeRejectsLengthMismatch(t *testing.T) {
	l := New()
	l.Add(0, 1)
	data := l.Serialize()
	if _, err := Deserialize(data[:len(data)-1]); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestMergeSumsRepeatedDocIDs(t *testing.T) {
	existing := New()
	existing.Add(0, 2)
	existing.Add(3, 1)

	merged := Merge(existing, map[uint32]uint32{3: 4, 5: 1})

	tf, ok := merged.TermFrequency(3)
	if !ok || tf != 5 {
		t.Fatalf("TermFrequency(3) = (%d, %v), want (5, true)", tf, ok)
	}
	if merged.DocFrequency() != 3 {
		t.Fatalf("DocFrequency() = %d, want 3", merged.DocFrequency())
	}

	// doc_ids must come out strictly increasing.
	var last int64 = -1
	merged.Iter(func(docID uint32, _ uint32) {
		if int64(docID) <= last {
			t.Fatalf("doc_ids not strictly increasing: %d after %d", docID, last)
		}
		last = int64(docID)
	})
}

func TestUnion(t *testing.T) {
	a := New()
	a.Add(1, 1)
	a.Add(2, 1)
	b := New()
	b.Add(2, 1)
	b.Add(3, 1)

	u := Union([]*List{a, b})
	for _, want := range []uint32{1, 2, 3} {
		if !u.Contains(want) {
			t.Errorf("union missing doc %d", want)
		}
	}
	if u.GetCardinality() != 3 {
		t.Errorf("union cardinality = %d, want 3", u.GetCardinality())
	}
}

func TestBitmapCardinalityMatchesTFVectorLength(t *testing.T) {
	l := New()
	for i := uint32(0); i < 50; i += 2 {
		l.Add(i, i+1)
	}
	data := l.Serialize()
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	count := 0
	got.Iter(func(uint32, uint32) { count++ })
	if int(got.Bitmap().GetCardinality()) != count {
		t.Fatalf("bitmap cardinality %d != tf vector length %d", got.Bitmap().GetCardinality(), count)
	}
}
