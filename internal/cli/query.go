package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Print the examples retrieved for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.TrimSpace(strings.Join(args, " "))
			if q == "" {
				return errors.New("query is required")
			}
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.service.Initialize(cmd.Context()); err != nil {
				return err
			}

			contexts := a.service.RetrieveContext(cmd.Context(), q, k)
			out := cmd.OutOrStdout()
			if len(contexts) == 0 {
				fmt.Fprintln(out, dimText("no examples found"))
				return nil
			}
			for i, c := range contexts {
				fmt.Fprintln(out, headText(fmt.Sprintf("Example %d", i+1)))
				fmt.Fprintln(out, c)
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of examples (0 uses retrieval.top_k)")
	return cmd
}
