package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload the corpus and rebuild the index, keeping the holdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.Refresh(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), failText("refresh failed:"), err)
				return err
			}
			if a.cache != nil {
				// Entries of older generations are unreachable; drop them early.
				a.cache.InvalidateAll(cmd.Context())
			}
			st := a.service.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d examples indexed %s\n",
				okText("ok"), st.Entries, dimText("(generation "+st.Generation+")"))
			if st.Skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d malformed corpus rows skipped\n", st.Skipped)
			}
			return nil
		},
	}
}
