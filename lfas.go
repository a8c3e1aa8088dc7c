// Package lfas implements a persistent, field-aware full-text search
// engine for structured postal-address records: given a corpus of
// address documents with named fields (street, neighborhood, city,
// state, postal code, number, ...) and a query supplying values for
// some subset of those fields, it returns the top-K best-matching
// document identifiers with relevance scores, tolerating typos,
// abbreviations, and partial input.
package lfas

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rprado/lfas/services/lfas/errs"
	"github.com/rprado/lfas/services/lfas/field"
	"github.com/rprado/lfas/services/lfas/invindex"
	"github.com/rprado/lfas/services/lfas/metadata"
	"github.com/rprado/lfas/services/lfas/postings"
	"github.com/rprado/lfas/services/lfas/scorer"
	"github.com/rprado/lfas/services/lfas/storage"
	"github.com/rprado/lfas/services/lfas/tokenizer"
)

var tracer = otel.Tracer("lfas")

var (
	documentsIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lfas",
		Subsystem: "engine",
		Name:      "documents_indexed_total",
		Help:      "Total documents accepted by AddDocument/AddDocumentsBulk.",
	})

	flushSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lfas",
		Subsystem: "engine",
		Name:      "flush_seconds",
		Help:      "Latency of Engine.Flush.",
		Buckets:   prometheus.DefBuckets,
	})

	searchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lfas",
		Subsystem: "engine",
		Name:      "search_seconds",
		Help:      "Latency of Engine.Search, labeled by whether Round 1 was skipped.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"round1_skipped"})
)

// Engine is an opened LFAS index: one storage environment, one metadata
// store, one inverted index, and the scorer parameters derived from its
// Config. An Engine owns all of its own mutable state; there is no
// process-wide singleton (SPEC_FULL.md §9).
//
// Thread Safety:
//
//	Search is safe for concurrent use by any number of callers. AddDocument,
//	AddDocumentsBulk, and Flush are serialized internally via mu, matching
//	the single-writer/many-reader discipline the storage backend itself
//	provides.
type Engine struct {
	mu      sync.Mutex
	backend storage.Backend
	meta    *metadata.Store
	index   *invindex.Index
	logger  *slog.Logger

	scoreParams scorer.Params
	batchSize   int
	storagePath string
}

// Open opens storage at cfg.StoragePath (or an in-memory backend if
// cfg.InMemory), loading any prior metadata snapshot, and returns a
// ready Engine. Open validates cfg first and returns errs.ErrConfig on
// any violation.
func Open(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()

	var backend storage.Backend
	var err error
	if cfg.InMemory {
		backend = storage.NewMemory()
	} else {
		backend, err = storage.OpenBadger(storage.BadgerOptions{
			Path:    cfg.StoragePath,
			MapSize: cfg.mapSize(),
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: opening storage: %v", errs.ErrStorage, err)
		}
	}

	meta, _, err := metadata.Load(backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("%w: loading metadata: %v", errs.ErrCorruption, err)
	}

	storagePath := cfg.StoragePath
	if cfg.InMemory {
		storagePath = ""
	}

	e := &Engine{
		backend: backend,
		meta:    meta,
		index:   invindex.New(backend, logger),
		logger:  logger,
		scoreParams: scorer.Params{
			K1:     cfg.k1(),
			Weight: cfg.weightSlice(),
			B:      cfg.bSlice(),
		},
		batchSize:   cfg.batchSize(),
		storagePath: storagePath,
	}
	return e, nil
}

// AddDocument assigns doc_id = metadata.next_id, tokenizes every present
// field, buffers posting additions and per-field lengths, and
// auto-flushes when the pending-entry count reaches batch_size. It
// returns the assigned doc_id.
func (e *Engine) AddDocument(ctx context.Context, record Record) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addDocumentLocked(ctx, record)
}

func (e *Engine) addDocumentLocked(ctx context.Context, record Record) (uint32, error) {
	docID := e.meta.ReserveDocID()

	for _, tag := range field.All() {
		text, ok := record[tag]
		if !ok || text == "" {
			continue
		}
		tokens := tokenizer.Tokenize(tag, text)
		length := uint32(0)
		for tok, tf := range tokens.TF {
			e.index.Append(docID, tag, tok, uint32(tf))
			length += uint32(tf)
		}
		e.meta.RecordFieldLength(tag, docID, length)
	}

	documentsIndexedTotal.Inc()

	if e.index.Pending() >= e.batchSize {
		if err := e.flushLocked(ctx); err != nil {
			return 0, err
		}
	}
	return docID, nil
}

// AddDocumentsBulk adds every record in records in order, returning their
// assigned doc_ids. If a record fails to add (only possible via a
// downstream auto-flush failure), the remaining records are not added
// and the error is returned with the doc_ids assigned so far.
func (e *Engine) AddDocumentsBulk(ctx context.Context, records []Record) ([]uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]uint32, 0, len(records))
	for _, r := range records {
		id, err := e.addDocumentLocked(ctx, r)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Flush forces index and metadata persistence: every buffered posting
// addition is merged with its on-disk posting list and the result,
// together with the current metadata snapshot, is written in a single
// atomic storage batch. A failed Flush leaves the in-memory buffer
// intact so the caller may retry.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked(ctx)
}

func (e *Engine) flushLocked(ctx context.Context) error {
	start := time.Now()
	err := e.index.Flush(ctx, e.meta.Entry())
	flushSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

// Close flushes any pending writes, syncs and closes the storage
// backend, and exports the metadata.bin on-disk snapshot alongside it
// (persistent backends only).
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.flushLocked(ctx); err != nil {
		return err
	}
	if err := e.backend.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", errs.ErrStorage, err)
	}
	if e.storagePath != "" {
		if err := e.meta.ExportFile(e.storagePath); err != nil {
			return fmt.Errorf("%w: exporting metadata.bin: %v", errs.ErrStorage, err)
		}
	}
	if err := e.backend.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", errs.ErrStorage, err)
	}
	return nil
}

// Search runs the two-round retrieval algorithm for query, returning up
// to top_k hits in descending score order, ties broken by lower doc_id.
// blocking_k bounds the Round-1 candidate set by distinctive-hit count.
func (e *Engine) Search(ctx context.Context, query Query, topK, blockingK int) ([]Hit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query must not be empty", errs.ErrQuery)
	}
	if topK == 0 || blockingK == 0 {
		return nil, fmt.Errorf("%w: top_k and blocking_k must be nonzero", errs.ErrQuery)
	}

	ctx, span := tracer.Start(ctx, "Engine.Search", trace.WithAttributes(
		attribute.Int("top_k", topK),
		attribute.Int("blocking_k", blockingK),
	))
	defer span.End()

	start := time.Now()
	txn, err := e.backend.BeginRead()
	if err != nil {
		return nil, fmt.Errorf("%w: begin_read: %v", errs.ErrStorage, err)
	}
	defer txn.Discard()

	perField := make(map[field.Tag]tokenizer.Tokens, len(query))
	for tag, text := range query {
		perField[tag] = tokenizer.Tokenize(tag, text)
	}

	candidates, round1Skipped, err := e.round1(ctx, txn, perField, blockingK)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("candidate_count", len(candidates)),
		attribute.Bool("round1_skipped", round1Skipped),
	)
	if candidates != nil && len(candidates) == 0 {
		searchSeconds.WithLabelValues(boolLabel(round1Skipped)).Observe(time.Since(start).Seconds())
		return nil, nil
	}

	hits, err := e.round2(ctx, txn, perField, candidates, topK)
	if err != nil {
		return nil, err
	}
	searchSeconds.WithLabelValues(boolLabel(round1Skipped)).Observe(time.Since(start).Seconds())
	return hits, nil
}

// SearchComplex is an alias for Search taking a field-name-keyed map
// instead of a Query, for callers working with the canonical string
// field names at the embedding boundary.
func (e *Engine) SearchComplex(ctx context.Context, byName map[string]string, topK, blockingK int) ([]Hit, error) {
	return e.Search(ctx, NewQueryFromNames(byName), topK, blockingK)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// candidateHits counts distinctive-posting-list hits per doc_id, used to
// rank down to blockingK when Round 1's raw union is too large.
type candidateHits struct {
	docID uint32
	hits  int
}

func (e *Engine) round1(ctx context.Context, txn storage.ReadTxn, perField map[field.Tag]tokenizer.Tokens, blockingK int) (candidates []uint32, skipped bool, err error) {
	var lists []*postings.List
	anyDistinctive := false
	hitCounts := make(map[uint32]int)

	for tag, toks := range perField {
		for tok := range toks.Distinctive {
			if err := ctx.Err(); err != nil {
				return nil, false, fmt.Errorf("%w", err)
			}
			anyDistinctive = true
			list, err := invindex.Lookup(txn, tag, tok)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %v", errs.ErrStorage, err)
			}
			lists = append(lists, list)
			list.Iter(func(docID uint32, _ uint32) {
				hitCounts[docID]++
			})
		}
	}

	if !anyDistinctive {
		return nil, true, nil
	}

	union := postings.Union(lists)
	all := union.ToArray()
	if len(all) == 0 {
		return []uint32{}, false, nil
	}
	if len(all) <= blockingK {
		return all, false, nil
	}

	ranked := make([]candidateHits, len(all))
	for i, docID := range all {
		ranked[i] = candidateHits{docID: docID, hits: hitCounts[docID]}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].hits != ranked[j].hits {
			return ranked[i].hits > ranked[j].hits
		}
		return ranked[i].docID < ranked[j].docID
	})
	ranked = ranked[:blockingK]

	out := make([]uint32, len(ranked))
	for i, r := range ranked {
		out[i] = r.docID
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, false, nil
}

// scoredHeap is a bounded min-heap of Hit keyed by score, used to keep
// only the top_k highest-scoring candidates while scanning Round 2 in
// arbitrary order.
type scoredHeap []Hit

func (h scoredHeap) Len() int { return len(h) }
func (h scoredHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	// Lower doc_id should lose ties for "worst of the heap" standing, so
	// invert: the heap treats the higher doc_id as the smaller element.
	return h[i].DocID > h[j].DocID
}
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (e *Engine) round2(ctx context.Context, txn storage.ReadTxn, perField map[field.Tag]tokenizer.Tokens, candidates []uint32, topK int) ([]Hit, error) {
	type fieldStats struct {
		docCount  uint32
		avgLength float64
	}
	stats := make(map[field.Tag]fieldStats, len(perField))
	for tag := range perField {
		stats[tag] = fieldStats{docCount: e.meta.DocCount(tag), avgLength: e.meta.AvgLength(tag)}
	}

	var contributions []scorer.Contribution
	for tag, toks := range perField {
		for tok := range toks.All {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
			list, err := invindex.Lookup(txn, tag, tok)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
			}
			list := list
			tag := tag
			contributions = append(contributions, scorer.Contribution{
				Term: scorer.Term{
					FieldTag:      int(tag),
					DocFreq:       uint32(list.DocFrequency()),
					FieldDocCount: stats[tag].docCount,
					AvgLength:     stats[tag].avgLength,
				},
				TF: func(docID uint32) uint32 {
					tf, _ := list.TermFrequency(docID)
					return tf
				},
				Len: func(docID uint32) uint32 {
					return e.meta.FieldLength(tag, docID)
				},
			})
		}
	}

	var docIDs []uint32
	if candidates == nil {
		docIDs = e.allDocIDs()
	} else {
		docIDs = candidates
	}

	h := &scoredHeap{}
	heap.Init(h)
	for _, docID := range docIDs {
		score := scorer.Score(e.scoreParams, docID, contributions)
		if score <= 0 {
			continue
		}
		if h.Len() < topK {
			heap.Push(h, Hit{DocID: docID, Score: score})
			continue
		}
		if (*h)[0].Score < score || ((*h)[0].Score == score && (*h)[0].DocID > docID) {
			heap.Pop(h)
			heap.Push(h, Hit{DocID: docID, Score: score})
		}
	}

	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out, nil
}

// allDocIDs returns every doc_id in [0, next_id), for a query that
// produced no distinctive tokens and so skipped Round 1 entirely.
func (e *Engine) allDocIDs() []uint32 {
	n := e.meta.NextDocID()
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}
