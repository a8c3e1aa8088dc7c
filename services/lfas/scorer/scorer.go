// Package scorer implements BM25F ranking: a field-weighted variant of
// BM25 that combines per-field term frequencies into a single relevance
// score per candidate document.
//
// The formula and defaulting rules follow the same shape as two other
// field-weighted BM25 scorers (a routing index's Lucene-style IDF
// smoothing, and a per-field k1/b parameter table), generalized to the
// exact BM25F formula this domain calls for.
package scorer

import "math"

// Params holds the scorer's tunable parameters: a single global k1 and
// per-field weight/length-normalization pairs.
type Params struct {
	K1 float64

	// Weight and B are indexed by field.Tag; callers pass slices sized
	// field.Count. A Weight entry <= 0 falls back to DefaultWeight; a B
	// entry is used as given (0 disables length normalization). A field
	// beyond the end of either slice uses DefaultWeight/DefaultB.
	Weight []float64
	B      []float64
}

// Defaults for field parameters not explicitly configured.
const (
	DefaultK1     = 1.2
	DefaultWeight = 1.0
	DefaultB      = 0.75
)

func (p Params) weight(fieldTag int) float64 {
	if fieldTag < len(p.Weight) && p.Weight[fieldTag] > 0 {
		return p.Weight[fieldTag]
	}
	return DefaultWeight
}

func (p Params) b(fieldTag int) float64 {
	if fieldTag < len(p.B) {
		return p.B[fieldTag]
	}
	return DefaultB
}

func (p Params) k1() float64 {
	if p.K1 > 0 {
		return p.K1
	}
	return DefaultK1
}

// Term is one scoring contribution: a query token in a specific field,
// together with the field-level statistics needed to score it against a
// candidate document.
type Term struct {
	FieldTag int

	// DocFreq is df(f,t): the posting-list cardinality for (field, term).
	DocFreq uint32

	// FieldDocCount is N_f: metadata.doc_count[f].
	FieldDocCount uint32

	// AvgLength is avglen(f): metadata.avg_length[f].
	AvgLength float64
}

// TermFrequency returns tf(d, f, t) for a candidate document, 0 if the
// document is absent from the posting list.
type TermFrequency func(docID uint32) uint32

// FieldLength returns len(d, f) for a candidate document, 0 if the field
// was absent (in which case the scorer substitutes AvgLength).
type FieldLength func(docID uint32) uint32

// Contribution is one (Term, TermFrequency, FieldLength) triple that
// together fully describes how a single query token scores against any
// candidate document.
type Contribution struct {
	Term Term
	TF   TermFrequency
	Len  FieldLength
}

// IDF computes IDF(f, t) with Robertson-Sparck-Jones smoothing, clamped
// to 0 for degenerate cases. Returns 0 if t.FieldDocCount is 0 (no
// documents have ever populated this field).
func IDF(t Term) float64 {
	if t.FieldDocCount == 0 {
		return 0
	}
	n := float64(t.FieldDocCount)
	df := float64(t.DocFreq)
	v := math.Log((n-df+0.5)/(df+0.5) + 1)
	if v < 0 {
		return 0
	}
	return v
}

// Score computes score(d, Q) = Σ IDF(f(q), term(q)) · TF'(d,q) / (k1 + TF'(d,q))
// over every contribution, for one candidate document.
func Score(params Params, docID uint32, contributions []Contribution) float64 {
	k1 := params.k1()
	var total float64
	for _, c := range contributions {
		idf := IDF(c.Term)
		if idf == 0 {
			continue
		}
		tf := float64(c.TF(docID))
		if tf == 0 {
			continue
		}
		length := float64(c.Len(docID))
		if length == 0 {
			length = c.Term.AvgLength
		}
		avg := c.Term.AvgLength
		var b float64
		if avg > 0 {
			b = (1 - params.b(c.Term.FieldTag)) + params.b(c.Term.FieldTag)*length/avg
		} else {
			b = 1
		}
		if b <= 0 {
			continue
		}
		tfPrime := params.weight(c.Term.FieldTag) * tf / b
		total += idf * tfPrime / (k1 + tfPrime)
	}
	return total
}
