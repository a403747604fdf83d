package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exemplar/internal/domain"
	"exemplar/internal/embedding"
	"exemplar/internal/embedding/tfidf"
	"exemplar/internal/holdout"
	"exemplar/internal/index"
	"exemplar/internal/vectorstore"
	"exemplar/internal/vectorstore/memory"
)

type fixture struct {
	dir         string
	corpusPath  string
	holdoutPath string
	store       vectorstore.Storage
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	return &fixture{
		dir:         dir,
		corpusPath:  filepath.Join(dir, "corpus.csv"),
		holdoutPath: filepath.Join(dir, "data", "test_set.json"),
		store:       memory.NewStorage(),
	}
}

func (f *fixture) writeCorpus(t *testing.T, records []domain.Record) {
	t.Helper()
	file, err := os.Create(f.corpusPath)
	require.NoError(t, err)
	w := csv.NewWriter(file)
	require.NoError(t, w.Write([]string{"user_input", "intent", "style_tags", "json_output"}))
	for _, r := range records {
		require.NoError(t, w.Write([]string{r.InputText, r.Intent, r.StyleTags, r.TargetOutput}))
	}
	w.Flush()
	require.NoError(t, w.Error())
	require.NoError(t, file.Close())
}

func (f *fixture) writeHoldout(t *testing.T, entries []domain.HoldoutEntry) {
	t.Helper()
	data, err := json.MarshalIndent(entries, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.holdoutPath), 0o755))
	require.NoError(t, os.WriteFile(f.holdoutPath, data, 0o644))
}

func (f *fixture) readHoldout(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(f.holdoutPath)
	require.NoError(t, err)
	return data
}

func (f *fixture) service(opts ...holdout.Option) *Service {
	ix := index.New(f.store, func() embedding.Embedder { return tfidf.NewEmbedder() }, index.Options{Workers: 2})
	return New(ix, holdout.NewManager(f.holdoutPath, opts...), Options{CorpusPath: f.corpusPath})
}

func rec(input string) domain.Record {
	return domain.Record{InputText: input, Intent: holdout.IntentGenerateJSON, TargetOutput: fmt.Sprintf(`{"prompt":%q}`, input)}
}

func scenes(n int) []domain.Record {
	subjects := []string{"orman", "deniz", "dağ", "şehir", "çöl", "kale", "göl", "köprü", "bahçe", "liman"}
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = rec(fmt.Sprintf("Sahne %02d: sisli %s manzarası", i, subjects[i%len(subjects)]))
	}
	return out
}

func indexedInputs(s *Service) []string {
	var out []string
	for _, e := range s.index.Entries() {
		out = append(out, e.Metadata.InputText)
	}
	return out
}

func assertDisjoint(t *testing.T, s *Service) {
	t.Helper()
	entries, err := s.Holdout()
	require.NoError(t, err)
	held := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		held[e.Text] = struct{}{}
	}
	for _, in := range indexedInputs(s) {
		_, leaked := held[in]
		assert.False(t, leaked, "indexed input %q is in the holdout", in)
	}
}

func TestRetrieveContextOnEmptyIndex(t *testing.T) {
	f := newFixture(t)
	s := f.service()

	got := s.RetrieveContext(context.Background(), "anything", 3)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestInitializeTwentyRowCorpus(t *testing.T) {
	f := newFixture(t)
	f.writeCorpus(t, scenes(20))
	s := f.service()

	require.NoError(t, s.Initialize(context.Background()))

	entries, err := s.Holdout()
	require.NoError(t, err)
	require.Len(t, entries, 1+len(holdout.CuratedCases))
	assert.Equal(t, 19, s.index.Count())
	assertDisjoint(t, s)

	st := s.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, 19, st.Entries)
	assert.Equal(t, 19, st.Stored)
	assert.NotEmpty(t, st.Generation)
	assert.Empty(t, st.LastError)
}

func TestRetrieveContextFindsMatchingExample(t *testing.T) {
	f := newFixture(t)
	records := append(scenes(6), rec("Kırmızı araba"), rec("Mavi bisiklet"))
	f.writeCorpus(t, records)
	f.writeHoldout(t, []domain.HoldoutEntry{
		{Text: records[0].InputText, ExpectedIntent: holdout.IntentGenerateJSON},
		{Text: "Merhaba, nasılsın?", ExpectedIntent: holdout.IntentGreeting},
	})
	s := f.service()
	require.NoError(t, s.Initialize(context.Background()))

	got := s.RetrieveContext(context.Background(), "Kırmızı araba", 3)
	require.Len(t, got, 3)
	assert.Equal(t, "User Input: Kırmızı araba\nJSON Output: {\"prompt\":\"Kırmızı araba\"}", got[0])
	assertDisjoint(t, s)
}

func TestRetrieveContextDefaultsK(t *testing.T) {
	f := newFixture(t)
	f.writeCorpus(t, scenes(10))
	f.writeHoldout(t, []domain.HoldoutEntry{{Text: "unrelated", ExpectedIntent: holdout.IntentUnknown}})
	s := f.service()
	require.NoError(t, s.Initialize(context.Background()))

	assert.Len(t, s.RetrieveContext(context.Background(), "sisli orman", 0), DefaultTopK)
	assert.Len(t, s.RetrieveContext(context.Background(), "sisli orman", 100), 10)
}

func TestRefreshPicksUpCorpusEditsAndKeepsHoldout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c, d := rec("A sahnesi"), rec("B sahnesi"), rec("C sahnesi"), rec("D sahnesi")
	base := append(scenes(4), a, b, c)
	f.writeCorpus(t, base)
	f.writeHoldout(t, []domain.HoldoutEntry{
		{Text: a.InputText, ExpectedIntent: a.Intent},
		{Text: b.InputText, ExpectedIntent: b.Intent},
		{Text: c.InputText, ExpectedIntent: c.Intent},
	})
	before := f.readHoldout(t)

	s := f.service()
	require.NoError(t, s.Initialize(ctx))
	assert.Equal(t, 4, s.index.Count())

	f.writeCorpus(t, append(base, d))
	require.NoError(t, s.Refresh(ctx))

	inputs := indexedInputs(s)
	assert.Contains(t, inputs, d.InputText)
	for _, held := range []string{a.InputText, b.InputText, c.InputText} {
		assert.NotContains(t, inputs, held)
	}
	assert.Equal(t, before, f.readHoldout(t))
}

func TestRefreshNeverRewritesHoldout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCorpus(t, scenes(40))
	s := f.service()
	require.NoError(t, s.Initialize(ctx))
	first := f.readHoldout(t)

	for i := 0; i < 3; i++ {
		f.writeCorpus(t, scenes(40+i))
		require.NoError(t, s.Refresh(ctx))
		assert.Equal(t, first, f.readHoldout(t))
		assertDisjoint(t, s)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCorpus(t, scenes(20))
	s := f.service()
	require.NoError(t, s.Initialize(ctx))

	type pair struct {
		doc  string
		meta domain.Record
	}
	snapshot := func() map[pair]int {
		out := map[pair]int{}
		for _, e := range s.index.Entries() {
			out[pair{e.DocumentText, e.Metadata}]++
		}
		return out
	}
	require.NoError(t, s.Refresh(ctx))
	first := snapshot()
	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, first, snapshot())
}

func TestHoldoutWaitsForNonEmptyCorpus(t *testing.T) {
	f := newFixture(t)
	f.writeCorpus(t, nil)
	s := f.service()
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx))
	assert.False(t, s.Status().Ready)
	assert.NoFileExists(t, f.holdoutPath)

	f.writeCorpus(t, scenes(40))
	require.NoError(t, s.Refresh(ctx))

	entries, err := s.Holdout()
	require.NoError(t, err)
	require.Len(t, entries, 2+len(holdout.CuratedCases))
	assert.Equal(t, 38, s.index.Count())
	assertDisjoint(t, s)
}

func TestInitializeWithMissingCorpusDegrades(t *testing.T) {
	f := newFixture(t)
	s := f.service()

	require.NoError(t, s.Initialize(context.Background()))
	st := s.Status()
	assert.False(t, st.Ready)
	assert.NotEmpty(t, st.LastError)
	assert.Empty(t, s.RetrieveContext(context.Background(), "araba", 3))

	require.ErrorIs(t, s.Refresh(context.Background()), domain.ErrLoad)
}

func TestRefreshWithCorruptHoldoutKeepsServing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCorpus(t, scenes(20))
	s := f.service()
	require.NoError(t, s.Initialize(ctx))
	gen := s.index.Generation()

	require.NoError(t, os.WriteFile(f.holdoutPath, []byte("{broken"), 0o644))
	require.ErrorIs(t, s.Refresh(ctx), domain.ErrHoldoutIO)

	assert.Equal(t, "{broken", string(f.readHoldout(t)))
	assert.Equal(t, gen, s.index.Generation())
	assert.NotEmpty(t, s.RetrieveContext(ctx, "sisli deniz", 3))
	st := s.Status()
	assert.True(t, st.Ready)
	assert.Contains(t, st.LastError, "holdout")
}

func TestInitializeReusesPersistedIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCorpus(t, scenes(20))
	first := f.service()
	require.NoError(t, first.Initialize(ctx))

	require.NoError(t, os.Remove(f.corpusPath))
	second := f.service()
	require.NoError(t, second.Initialize(ctx))

	assert.Equal(t, first.index.Generation(), second.index.Generation())
	assert.True(t, second.Status().Ready)
	assert.NotEmpty(t, second.RetrieveContext(ctx, "sisli göl", 2))
}

type unavailableStorage struct{ vectorstore.Storage }

func (unavailableStorage) Load(context.Context) (vectorstore.Snapshot, error) {
	return vectorstore.Snapshot{}, errors.New("connection refused")
}

func TestInitializeFailsWhenStorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store = unavailableStorage{memory.NewStorage()}
	s := f.service()

	require.ErrorIs(t, s.Initialize(context.Background()), domain.ErrIndexIO)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]string
	hits int
}

func (c *mapCache) key(gen string, k int, q string) string { return fmt.Sprintf("%s|%d|%s", gen, k, q) }

func (c *mapCache) Get(_ context.Context, gen string, k int, q string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[c.key(gen, k, q)]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *mapCache) Set(_ context.Context, gen string, k int, q string, v []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[c.key(gen, k, q)] = v
}

func TestRetrieveContextUsesCachePerGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCorpus(t, scenes(20))
	c := &mapCache{data: map[string][]string{}}
	ix := index.New(f.store, func() embedding.Embedder { return tfidf.NewEmbedder() }, index.Options{})
	s := New(ix, holdout.NewManager(f.holdoutPath), Options{CorpusPath: f.corpusPath, Cache: c})
	require.NoError(t, s.Initialize(ctx))

	want := s.RetrieveContext(ctx, "sisli kale", 2)
	require.NotEmpty(t, want)
	assert.Equal(t, want, s.RetrieveContext(ctx, "sisli kale", 2))
	assert.Equal(t, 1, c.hits)

	require.NoError(t, s.Refresh(ctx))
	s.RetrieveContext(ctx, "sisli kale", 2)
	assert.Equal(t, 1, c.hits, "a rebuilt index must not serve older cached contexts")
}

func TestConcurrentRetrieveDuringRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeCorpus(t, scenes(30))
	s := f.service()
	require.NoError(t, s.Initialize(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got := s.RetrieveContext(ctx, "sisli liman", 3)
				assert.Len(t, got, 3)
				assert.True(t, strings.HasPrefix(got[0], "User Input: "))
			}
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Refresh(ctx))
	}
	wg.Wait()
}
