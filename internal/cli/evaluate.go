package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"exemplar/internal/config"
	"exemplar/internal/evaluation"
	"exemplar/internal/generate"
)

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var (
		k       int
		workers int
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the holdout through each configured generator and compare intent separation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engines, err := evaluationEngines(opts.cfg)
			if err != nil {
				return err
			}
			if len(engines) == 0 {
				return errors.New("no generator configured (generator.type or evaluation.generators)")
			}
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.service.Initialize(cmd.Context()); err != nil {
				return err
			}
			entries, err := a.holdout.Load()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.New("holdout is empty; run refresh first")
			}

			out := cmd.OutOrStdout()
			reports, err := evaluation.Compare(cmd.Context(), engines, a.service, evaluation.Options{
				K:       k,
				Workers: workers,
				Progress: func(done, total int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%d/%d", done, total)
				},
			}, entries)
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			for _, rep := range reports {
				fmt.Fprintf(out, "%s %s\n", headText("engine"), rep.Engine)
				for _, r := range rep.Results {
					mark := okText("✓")
					if !r.Correct {
						mark = failText("✗")
					}
					fmt.Fprintf(out, "%s %-14s %-14s %s\n", mark, r.ExpectedIntent, r.Predicted, r.Text)
				}
				if rep.Failed > 0 {
					fmt.Fprintf(out, "%s %d requests failed\n", failText("warning:"), rep.Failed)
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%-24s %9s %9s %9s %9s\n", "engine", "accuracy", "precision", "recall", "f1")
			for _, rep := range reports {
				fmt.Fprintf(out, "%-24s %9.3f %9.3f %9.3f %9.3f\n",
					rep.Engine, rep.Accuracy, rep.Precision, rep.Recall, rep.F1)
			}

			if outPath != "" {
				data, err := json.MarshalIndent(reports, "", "  ")
				if err != nil {
					return err
				}
				return os.WriteFile(outPath, data, 0o644)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "examples retrieved per entry (0 uses retrieval.top_k)")
	cmd.Flags().IntVar(&workers, "workers", 2, "concurrent generator requests")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the full report as JSON")
	return cmd
}

// evaluationEngines builds generator followed by every evaluation.generators entry.
func evaluationEngines(cfg *config.AppConfig) ([]generate.Engine, error) {
	var engines []generate.Engine
	for _, gc := range append([]config.GeneratorConfig{cfg.Generator}, cfg.Evaluation.Generators...) {
		engine, err := newEngine(gc)
		if err != nil {
			return nil, err
		}
		if engine != nil {
			engines = append(engines, engine)
		}
	}
	return engines, nil
}
