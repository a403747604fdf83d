package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"exemplar/internal/platform/applog"
	"exemplar/internal/tui"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal UI for retrieval and generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.service.Initialize(cmd.Context()); err != nil {
				return err
			}
			engine, err := newEngine(opts.cfg.Generator)
			if err != nil {
				applog.Warn("[App] generation disabled", "error", err)
			}

			m := tui.New(a.service, tui.Options{TopK: opts.cfg.Retrieval.TopK, Engine: engine})
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}
