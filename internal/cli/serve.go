package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"exemplar/internal/api"
	"exemplar/internal/platform/applog"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval, refresh and holdout endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.service.Initialize(ctx); err != nil {
				return err
			}

			scfg := api.DefaultServerConfig()
			scfg.Addr = opts.cfg.Server.Addr
			if addr != "" {
				scfg.Addr = addr
			}
			srv := api.NewServer(scfg, a.service)
			engine, err := newEngine(opts.cfg.Generator)
			if err != nil {
				applog.Warn("[App] generation disabled", "error", err)
			} else if engine != nil {
				srv.SetEngine(engine)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			applog.Info("[App] shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
