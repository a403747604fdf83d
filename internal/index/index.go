package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"exemplar/internal/domain"
	"exemplar/internal/embedding"
	"exemplar/internal/platform/applog"
	"exemplar/internal/vectorstore"
)

// ErrEmptyTrainSet is returned by Rebuild when there is nothing to index.
var ErrEmptyTrainSet = errors.New("empty train set")

const defaultWorkers = 4

type Options struct {
	// Workers bounds concurrent Embed calls during a rebuild.
	Workers int
}

// Index is the in-process view of the embedding index. Queries read an
// immutable snapshot; Rebuild builds a new one and swaps it in only after it
// has been persisted.
type Index struct {
	storage vectorstore.Storage
	factory embedding.Factory
	workers int

	mu     sync.Mutex
	active atomic.Pointer[snapshot]
}

type snapshot struct {
	generation string
	embedder   embedding.Embedder
	entries    []domain.IndexEntry
	tokens     []map[string]struct{}
}

func New(storage vectorstore.Storage, factory embedding.Factory, opts Options) *Index {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Index{storage: storage, factory: factory, workers: workers}
}

// Open restores the persisted snapshot. An empty store, or one written by a
// different embedder, leaves the index empty so the caller rebuilds it.
func (ix *Index) Open(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stored, err := ix.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load snapshot: %w", domain.ErrIndexIO, err)
	}
	if len(stored.Entries) == 0 {
		return nil
	}
	emb := ix.factory()
	if stored.Embedder != emb.Name() {
		applog.Warn("[Index] stored snapshot uses another embedder, ignoring",
			"stored", stored.Embedder, "configured", emb.Name())
		return nil
	}
	docs := make([]string, len(stored.Entries))
	for i, e := range stored.Entries {
		docs[i] = e.DocumentText
	}
	if err := emb.Prepare(docs); err != nil {
		return fmt.Errorf("%w: prepare embedder: %w", domain.ErrEmbedding, err)
	}
	if dim := emb.Dimension(); dim > 0 && dim != len(stored.Entries[0].Embedding) {
		applog.Warn("[Index] stored snapshot has another dimension, ignoring",
			"stored", len(stored.Entries[0].Embedding), "configured", dim)
		return nil
	}
	ix.active.Store(newSnapshot(stored.Generation, emb, stored.Entries))
	applog.Info("[Index] opened", "generation", stored.Generation, "entries", len(stored.Entries))
	return nil
}

// Rebuild replaces the whole index with the train records. On any failure the
// previous snapshot keeps serving.
func (ix *Index) Rebuild(ctx context.Context, train []domain.Record) error {
	if len(train) == 0 {
		return ErrEmptyTrainSet
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	docs := make([]string, len(train))
	for i, r := range train {
		docs[i] = r.DocumentText()
	}
	emb := ix.factory()
	if err := emb.Prepare(docs); err != nil {
		return fmt.Errorf("%w: prepare embedder: %w", domain.ErrEmbedding, err)
	}

	vectors := make([][]float64, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i := range docs {
		g.Go(func() error {
			vec, err := emb.Embed(gctx, docs[i])
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}

	entries := make([]domain.IndexEntry, len(train))
	for i, r := range train {
		entries[i] = domain.IndexEntry{
			ID:           strconv.Itoa(i),
			Embedding:    vectors[i],
			DocumentText: docs[i],
			Metadata:     r,
		}
	}
	next := vectorstore.Snapshot{Generation: uuid.NewString(), Embedder: emb.Name(), Entries: entries}
	if err := ix.storage.Replace(ctx, next); err != nil {
		return fmt.Errorf("%w: replace snapshot: %w", domain.ErrIndexIO, err)
	}
	ix.active.Store(newSnapshot(next.Generation, emb, entries))
	applog.Info("[Index] rebuilt", "generation", next.Generation, "entries", len(entries), "embedder", emb.Name())
	return nil
}

// Query returns the k entries most similar to text. k is clamped to the index size.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]domain.SearchResult, error) {
	snap := ix.active.Load()
	if snap == nil || len(snap.entries) == 0 || k <= 0 {
		return []domain.SearchResult{}, nil
	}
	k = min(k, len(snap.entries))

	vec, err := snap.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", domain.ErrEmbedding, err)
	}
	var scores []float64
	if !embedding.IsZero(vec) {
		scores = make([]float64, len(snap.entries))
		best := 0.0
		for i, e := range snap.entries {
			scores[i] = cosine(vec, e.Embedding)
			best = max(best, scores[i])
		}
		if best <= 1e-9 {
			scores = nil
		}
	}
	if scores == nil {
		scores = snap.lexicalScores(text)
	}
	return topK(snap.entries, scores, k), nil
}

// Count returns the number of entries in the active snapshot.
func (ix *Index) Count() int {
	if snap := ix.active.Load(); snap != nil {
		return len(snap.entries)
	}
	return 0
}

// Stored returns the number of entries in persistent storage.
func (ix *Index) Stored(ctx context.Context) (int, error) {
	n, err := ix.storage.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrIndexIO, err)
	}
	return n, nil
}

// Generation returns the id of the active snapshot, or "" when empty.
func (ix *Index) Generation() string {
	if snap := ix.active.Load(); snap != nil {
		return snap.generation
	}
	return ""
}

// Entries returns a copy of the active snapshot's entries in id order.
func (ix *Index) Entries() []domain.IndexEntry {
	snap := ix.active.Load()
	if snap == nil {
		return nil
	}
	out := make([]domain.IndexEntry, len(snap.entries))
	copy(out, snap.entries)
	return out
}

func newSnapshot(gen string, emb embedding.Embedder, entries []domain.IndexEntry) *snapshot {
	tokens := make([]map[string]struct{}, len(entries))
	for i, e := range entries {
		tokens[i] = embedding.TokenSet(e.DocumentText)
	}
	return &snapshot{generation: gen, embedder: emb, entries: entries, tokens: tokens}
}

// lexicalScores ranks by Ochiai token overlap, |A∩B| / sqrt(|A||B|).
func (s *snapshot) lexicalScores(query string) []float64 {
	q := embedding.TokenSet(query)
	scores := make([]float64, len(s.tokens))
	if len(q) == 0 {
		return scores
	}
	for i, doc := range s.tokens {
		if len(doc) == 0 {
			continue
		}
		inter := 0
		for t := range doc {
			if _, ok := q[t]; ok {
				inter++
			}
		}
		scores[i] = float64(inter) / math.Sqrt(float64(len(q))*float64(len(doc)))
	}
	return scores
}

// topK orders by score descending; equal scores keep ascending id order.
func topK(entries []domain.IndexEntry, scores []float64, k int) []domain.SearchResult {
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	out := make([]domain.SearchResult, k)
	for i := range out {
		out[i] = domain.SearchResult{Entry: entries[order[i]], Score: scores[order[i]]}
	}
	return out
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
