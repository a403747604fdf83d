package evaluation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exemplar/internal/domain"
	"exemplar/internal/generate"
	"exemplar/internal/holdout"
)

// scriptedEngine answers with JSON for queries containing "çiz" and fails for "hata".
type scriptedEngine struct {
	mu       sync.Mutex
	contexts map[string][]string
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Generate(_ context.Context, query string, contexts []string) (string, error) {
	e.mu.Lock()
	e.contexts[query] = contexts
	e.mu.Unlock()
	switch {
	case strings.Contains(query, "hata"):
		return "", &generate.CommError{Engine: "scripted", Err: errors.New("timeout")}
	case strings.Contains(query, "çiz"):
		return "```json\n{\"scene\":\"x\"}\n```", nil
	default:
		return "Merhaba!", nil
	}
}

type staticRetriever []string

func (r staticRetriever) RetrieveContext(context.Context, string, int) []string { return r }

func TestRun(t *testing.T) {
	engine := &scriptedEngine{contexts: map[string][]string{}}
	entries := []domain.HoldoutEntry{
		{Text: "Bir kedi çiz", ExpectedIntent: holdout.IntentGenerateJSON},
		{Text: "Merhaba", ExpectedIntent: holdout.IntentGreeting},
		{Text: "Seed nedir, çiz bakalım", ExpectedIntent: holdout.IntentExplainTerm},
		{Text: "Bir orman hata", ExpectedIntent: holdout.IntentGenerateJSON},
	}
	var progress []int
	var mu sync.Mutex
	ev := New(engine, staticRetriever{"ctx"}, Options{K: 3, Workers: 3, Progress: func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 4, total)
		progress = append(progress, done)
	}})

	rep, err := ev.Run(context.Background(), entries)
	require.NoError(t, err)

	require.Len(t, rep.Results, 4)
	assert.Equal(t, "scripted", rep.Engine)
	assert.True(t, rep.Results[0].Correct)
	assert.True(t, rep.Results[1].Correct)
	assert.False(t, rep.Results[2].Correct)
	assert.NotEmpty(t, rep.Results[3].Error)

	assert.Equal(t, 1, rep.TP)
	assert.Equal(t, 1, rep.FP)
	assert.Equal(t, 1, rep.TN)
	assert.Equal(t, 1, rep.FN)
	assert.Equal(t, 1, rep.Failed)
	assert.InDelta(t, 0.5, rep.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, rep.F1, 1e-9)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, progress)
	assert.Equal(t, []string{"ctx"}, engine.contexts["Merhaba"])
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := New(&scriptedEngine{contexts: map[string][]string{}}, nil, Options{})
	_, err := ev.Run(ctx, []domain.HoldoutEntry{{Text: "x"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, holdout.IntentGenerateJSON, Classify(`{"a":1}`))
	assert.Equal(t, holdout.IntentGenerateJSON, Classify(`Tabii: {"a":1}`))
	assert.Equal(t, PredictedText, Classify(`[1,2]`))
	assert.Equal(t, PredictedText, Classify("CFG scale, modelin prompta ne kadar uyacağını belirler."))
}

func TestSummarizeEmpty(t *testing.T) {
	rep := Summarize(nil)
	assert.Zero(t, rep.Accuracy)
	assert.Zero(t, rep.F1)
}

type constantEngine struct {
	name  string
	reply string
}

func (e constantEngine) Name() string { return e.name }

func (e constantEngine) Generate(context.Context, string, []string) (string, error) {
	return e.reply, nil
}

func TestCompare(t *testing.T) {
	entries := []domain.HoldoutEntry{
		{Text: "Bir kedi çiz", ExpectedIntent: holdout.IntentGenerateJSON},
		{Text: "Merhaba", ExpectedIntent: holdout.IntentGreeting},
	}
	engines := []generate.Engine{
		constantEngine{name: "grok", reply: `{"scene":"x"}`},
		constantEngine{name: "gemini", reply: "Merhaba!"},
	}

	reports, err := Compare(context.Background(), engines, staticRetriever{"ctx"}, Options{Workers: 2}, entries)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "grok", reports[0].Engine)
	assert.Equal(t, 1, reports[0].TP)
	assert.Equal(t, 1, reports[0].FP)
	assert.InDelta(t, 0.5, reports[0].Precision, 1e-9)
	assert.InDelta(t, 1.0, reports[0].Recall, 1e-9)

	assert.Equal(t, "gemini", reports[1].Engine)
	assert.Equal(t, 1, reports[1].FN)
	assert.Equal(t, 1, reports[1].TN)
	assert.Zero(t, reports[1].F1)
}

func TestCompareStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compare(ctx, []generate.Engine{constantEngine{name: "grok"}}, nil, Options{},
		[]domain.HoldoutEntry{{Text: "a", ExpectedIntent: holdout.IntentGreeting}})
	require.ErrorIs(t, err, context.Canceled)
}
