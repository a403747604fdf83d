package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"exemplar/internal/cache"
	"exemplar/internal/corpus"
	"exemplar/internal/domain"
	"exemplar/internal/holdout"
	"exemplar/internal/index"
	"exemplar/internal/platform/applog"
)

const DefaultTopK = 3

// Options configures a Service.
type Options struct {
	CorpusPath string
	Corpus     corpus.Options
	// TopK is used when RetrieveContext is called with k <= 0.
	TopK int
	// Cache is optional.
	Cache cache.ContextCache
}

// Status describes the serving state of the service.
type Status struct {
	Ready       bool      `json:"ready"`
	Entries     int       `json:"entries"`
	Generation  string    `json:"generation"`
	Stored      int       `json:"stored_entries"`
	Skipped     int       `json:"skipped_rows"`
	LastError   string    `json:"last_error,omitempty"`
	LastRefresh time.Time `json:"last_refresh"`
}

// Service keeps the retrieval index in sync with the corpus while protecting
// the evaluation holdout.
type Service struct {
	index      *index.Index
	holdout    *holdout.Manager
	corpusPath string
	corpusOpts corpus.Options
	topK       int
	cache      cache.ContextCache

	refreshMu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

var _ domain.RetrievalService = (*Service)(nil)

func New(ix *index.Index, hm *holdout.Manager, opts Options) *Service {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		index:      ix,
		holdout:    hm,
		corpusPath: opts.CorpusPath,
		corpusOpts: opts.Corpus,
		topK:       topK,
		cache:      opts.Cache,
	}
}

// Initialize opens the persisted index and populates it when empty. Build
// failures leave the service running with no context; only an unavailable
// index storage is returned as an error.
func (s *Service) Initialize(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if err := s.index.Open(ctx); err != nil {
		if errors.Is(err, domain.ErrIndexIO) {
			s.setError(err)
			return err
		}
		applog.Warn("[Service] persisted index unusable, rebuilding", "error", err)
	}
	if s.index.Count() > 0 {
		s.setReady(0, s.stored(ctx))
		return nil
	}
	if err := s.rebuild(ctx); err != nil {
		applog.Error("[Service] initial build failed, serving without context", "error", err)
	}
	return nil
}

// Refresh reloads the corpus, re-applies the existing holdout, and rebuilds the
// index. Queries keep using the previous snapshot until the swap.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.rebuild(ctx)
}

func (s *Service) rebuild(ctx context.Context) error {
	start := time.Now()
	res, err := corpus.Load(s.corpusPath, s.corpusOpts)
	if err != nil {
		s.setError(err)
		return err
	}
	train, fresh, err := s.holdout.Ensure(res.Records)
	if err != nil {
		s.setError(err)
		return err
	}
	if err := s.index.Rebuild(ctx, train); err != nil {
		s.setError(err)
		return fmt.Errorf("rebuild index: %w", err)
	}
	s.setReady(res.Skipped, s.stored(ctx))
	applog.Info("[Service] index refreshed",
		"records", len(res.Records),
		"train", len(train),
		"holdout_created", fresh,
		"entries", s.index.Count(),
		"elapsed", time.Since(start).String())
	return nil
}

// RetrieveContext returns up to k formatted examples similar to query. It never
// fails; any problem yields an empty slice.
func (s *Service) RetrieveContext(ctx context.Context, query string, k int) []string {
	if k <= 0 {
		k = s.topK
	}
	gen := s.index.Generation()
	if gen == "" {
		return []string{}
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, gen, k, query); ok {
			return cached
		}
	}

	results, err := s.index.Query(ctx, query, k)
	if err != nil {
		applog.Warn("[Service] retrieval failed", "error", err)
		return []string{}
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, FormatContext(r.Entry.Metadata))
	}
	if s.cache != nil && len(out) > 0 {
		s.cache.Set(ctx, gen, k, query, out)
	}
	return out
}

// Holdout returns the persisted evaluation holdout.
func (s *Service) Holdout() ([]domain.HoldoutEntry, error) {
	return s.holdout.Load()
}

// Status returns a copy of the current serving state.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	st := s.status
	s.statusMu.RUnlock()
	st.Entries = s.index.Count()
	st.Generation = s.index.Generation()
	return st
}

// FormatContext renders a record as a prompt example.
func FormatContext(r domain.Record) string {
	return fmt.Sprintf("User Input: %s\nJSON Output: %s", r.InputText, r.TargetOutput)
}

// stored reads the persisted entry count; -1 when storage cannot be read.
func (s *Service) stored(ctx context.Context) int {
	n, err := s.index.Stored(ctx)
	if err != nil {
		applog.Warn("[Service] count stored entries failed", "error", err)
		return -1
	}
	return n
}

func (s *Service) setReady(skipped, stored int) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Ready = true
	s.status.Stored = stored
	s.status.Skipped = skipped
	s.status.LastError = ""
	s.status.LastRefresh = time.Now()
}

// setError keeps Ready as is: a failed refresh still serves the previous snapshot.
func (s *Service) setError(err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.LastError = err.Error()
}
