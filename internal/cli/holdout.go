package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHoldoutCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "holdout",
		Short: "Show the persisted evaluation holdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.holdout.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "no holdout at %s; it is created on the first index build\n", a.holdout.Path())
				return nil
			}
			fmt.Fprintf(out, "%s %d entries in %s\n", headText("holdout"), len(entries), a.holdout.Path())
			for _, e := range entries {
				fmt.Fprintf(out, "  %-14s %s\n", dimText(e.ExpectedIntent), e.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON entries")
	return cmd
}
