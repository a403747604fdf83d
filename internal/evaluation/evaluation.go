// Package evaluation measures how well an engine separates image requests
// (JSON replies) from everything else on the protected holdout.
package evaluation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"exemplar/internal/domain"
	"exemplar/internal/extract"
	"exemplar/internal/generate"
	"exemplar/internal/holdout"
	"exemplar/internal/platform/applog"
)

// PredictedText labels a reply without a JSON object.
const PredictedText = "text"

// Retriever supplies context examples for a query.
type Retriever interface {
	RetrieveContext(ctx context.Context, query string, k int) []string
}

// Result is the outcome for one holdout entry.
type Result struct {
	Text           string `json:"text"`
	ExpectedIntent string `json:"expected_intent"`
	Predicted      string `json:"predicted"`
	Correct        bool   `json:"correct"`
	Reply          string `json:"reply,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Report aggregates results with generate_json as the positive class.
type Report struct {
	Engine    string        `json:"engine"`
	Results   []Result      `json:"results"`
	TP        int           `json:"tp"`
	FP        int           `json:"fp"`
	TN        int           `json:"tn"`
	FN        int           `json:"fn"`
	Failed    int           `json:"failed"`
	Accuracy  float64       `json:"accuracy"`
	Precision float64       `json:"precision"`
	Recall    float64       `json:"recall"`
	F1        float64       `json:"f1"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Options struct {
	K       int
	Workers int
	// Progress is called after each entry with the number finished so far.
	Progress func(done, total int)
}

type Evaluator struct {
	engine    generate.Engine
	retriever Retriever
	opts      Options
}

func New(engine generate.Engine, retriever Retriever, opts Options) *Evaluator {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	return &Evaluator{engine: engine, retriever: retriever, opts: opts}
}

// Run sends every entry through retrieval and generation. Engine failures are
// recorded per entry; only cancellation aborts the run.
func (e *Evaluator) Run(ctx context.Context, entries []domain.HoldoutEntry) (Report, error) {
	start := time.Now()
	results := make([]Result, len(entries))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluate(gctx, entry)
			if e.opts.Progress != nil {
				e.opts.Progress(int(done.Add(1)), len(entries))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep := Summarize(results)
	rep.Engine = e.engine.Name()
	rep.Elapsed = time.Since(start)
	applog.Info("[Evaluation] finished",
		"engine", rep.Engine, "entries", len(results), "accuracy", rep.Accuracy, "f1", rep.F1, "failed", rep.Failed)
	return rep, nil
}

// Compare runs the same entries through each engine in turn, one report per
// engine in the given order.
func Compare(ctx context.Context, engines []generate.Engine, retriever Retriever, opts Options, entries []domain.HoldoutEntry) ([]Report, error) {
	reports := make([]Report, 0, len(engines))
	for _, engine := range engines {
		rep, err := New(engine, retriever, opts).Run(ctx, entries)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", engine.Name(), err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (e *Evaluator) evaluate(ctx context.Context, entry domain.HoldoutEntry) Result {
	res := Result{Text: entry.Text, ExpectedIntent: entry.ExpectedIntent}
	var contexts []string
	if e.retriever != nil {
		contexts = e.retriever.RetrieveContext(ctx, entry.Text, e.opts.K)
	}
	reply, err := e.engine.Generate(ctx, entry.Text, contexts)
	if err != nil {
		applog.Warn("[Evaluation] generation failed", "text", entry.Text, "error", err)
		res.Error = err.Error()
		return res
	}
	res.Reply = reply
	res.Predicted = Classify(reply)
	res.Correct = isPositive(res.Predicted) == isPositive(res.ExpectedIntent)
	return res
}

// Classify labels a reply generate_json when it carries a JSON object.
func Classify(reply string) string {
	if _, ok := extract.Object(reply); ok {
		return holdout.IntentGenerateJSON
	}
	return PredictedText
}

// Summarize computes the confusion matrix and scores. Failed entries count as
// predicted negative.
func Summarize(results []Result) Report {
	rep := Report{Results: results}
	for _, r := range results {
		if r.Error != "" {
			rep.Failed++
		}
		actual := isPositive(r.ExpectedIntent)
		predicted := isPositive(r.Predicted)
		switch {
		case actual && predicted:
			rep.TP++
		case !actual && predicted:
			rep.FP++
		case actual && !predicted:
			rep.FN++
		default:
			rep.TN++
		}
	}
	if n := len(results); n > 0 {
		rep.Accuracy = float64(rep.TP+rep.TN) / float64(n)
	}
	if rep.TP+rep.FP > 0 {
		rep.Precision = float64(rep.TP) / float64(rep.TP+rep.FP)
	}
	if rep.TP+rep.FN > 0 {
		rep.Recall = float64(rep.TP) / float64(rep.TP+rep.FN)
	}
	if rep.Precision+rep.Recall > 0 {
		rep.F1 = 2 * rep.Precision * rep.Recall / (rep.Precision + rep.Recall)
	}
	return rep
}

func isPositive(intent string) bool { return intent == holdout.IntentGenerateJSON }
