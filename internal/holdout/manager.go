package holdout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"exemplar/internal/domain"
	"exemplar/internal/platform/applog"
)

const (
	DefaultFraction = 0.05
	DefaultSeed     = 42
)

// Manager owns the persisted evaluation holdout. Once the file holds at least
// one entry it is never rewritten; deleting the file is the only reset.
type Manager struct {
	path     string
	fraction float64
	seed     uint64
	cases    []domain.HoldoutEntry
}

// Option customizes a Manager.
type Option func(*Manager)

// WithFraction sets the share of corpus records sampled into a new holdout.
func WithFraction(f float64) Option { return func(m *Manager) { m.fraction = f } }

// WithSeed sets the sampler seed.
func WithSeed(seed uint64) Option { return func(m *Manager) { m.seed = seed } }

// WithCases replaces the curated cases appended to a new holdout.
func WithCases(cases []domain.HoldoutEntry) Option {
	return func(m *Manager) { m.cases = cases }
}

// NewManager creates a manager persisting to path.
func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{
		path:     path,
		fraction: DefaultFraction,
		seed:     DefaultSeed,
		cases:    CuratedCases,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the holdout file location.
func (m *Manager) Path() string { return m.path }

// Load returns the persisted holdout. A missing, blank, or "[]" file yields no
// entries and no error; anything else that is not a list of entries fails with
// domain.ErrHoldoutIO.
func (m *Manager) Load() ([]domain.HoldoutEntry, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrHoldoutIO, m.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []domain.HoldoutEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrHoldoutIO, m.path, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: parse %s: not a JSON array", domain.ErrHoldoutIO, m.path)
	}
	for i, e := range entries {
		if e.Text == "" {
			return nil, fmt.Errorf("%w: %s: entry %d has no text", domain.ErrHoldoutIO, m.path, i)
		}
	}
	return entries, nil
}

// Ensure returns the train partition of records. An established holdout is
// loaded and applied as an exclusion filter; otherwise a new one is sampled,
// extended with the curated cases, and persisted. fresh reports the latter.
func (m *Manager) Ensure(records []domain.Record) (train []domain.Record, fresh bool, err error) {
	existing, err := m.Load()
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		train = Exclude(records, existing)
		applog.Info("[Holdout] protecting existing holdout",
			"entries", len(existing), "train", len(train))
		return train, false, nil
	}
	if len(records) == 0 {
		// Saving now would pin a holdout without any sampled records.
		applog.Warn("[Holdout] no records, holdout not created", "path", m.path)
		return nil, false, nil
	}

	entries := m.build(records)
	if err := m.save(entries); err != nil {
		return nil, false, err
	}
	train = Exclude(records, entries)
	applog.Info("[Holdout] created new holdout",
		"path", m.path, "entries", len(entries), "train", len(train))
	return train, true, nil
}

func (m *Manager) build(records []domain.Record) []domain.HoldoutEntry {
	n := SampleSize(len(records), m.fraction)
	picked := Sample(len(records), n, m.seed)

	entries := make([]domain.HoldoutEntry, 0, n+len(m.cases))
	seen := make(map[string]struct{}, n+len(m.cases))
	add := func(e domain.HoldoutEntry) {
		if _, ok := seen[e.Text]; ok {
			return
		}
		seen[e.Text] = struct{}{}
		entries = append(entries, e)
	}
	for _, idx := range picked {
		add(domain.HoldoutEntry{Text: records[idx].InputText, ExpectedIntent: records[idx].Intent})
	}
	for _, c := range m.cases {
		add(c)
	}
	return entries
}

func (m *Manager) save(entries []domain.HoldoutEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("%w: encode: %w", domain.ErrHoldoutIO, err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %w", domain.ErrHoldoutIO, err)
	}
	tmp, err := os.CreateTemp(dir, ".holdout-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", domain.ErrHoldoutIO, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write: %w", domain.ErrHoldoutIO, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync: %w", domain.ErrHoldoutIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", domain.ErrHoldoutIO, err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("%w: rename: %w", domain.ErrHoldoutIO, err)
	}
	return nil
}

// Exclude returns the records whose input text is not a holdout text.
// Membership is exact string equality.
func Exclude(records []domain.Record, entries []domain.HoldoutEntry) []domain.Record {
	texts := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		texts[e.Text] = struct{}{}
	}
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if _, held := texts[r.InputText]; held {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SampleSize is round(total*fraction), bounded by total.
func SampleSize(total int, fraction float64) int {
	if total <= 0 || fraction <= 0 {
		return 0
	}
	n := int(math.Round(float64(total) * fraction))
	if n > total {
		n = total
	}
	return n
}

// Sample picks n distinct indices out of [0,total) with a partial Fisher-Yates
// shuffle driven by PCG(seed, seed). The returned order is the draw order.
// Changing this algorithm changes every newly created holdout.
func Sample(total, n int, seed uint64) []int {
	if n <= 0 || total <= 0 {
		return nil
	}
	if n > total {
		n = total
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	idx := make([]int, total)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.IntN(total-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:n:n]
}
