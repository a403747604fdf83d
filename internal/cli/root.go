package cli

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"exemplar/internal/config"
	"exemplar/internal/platform/applog"
)

var (
	okText   = color.New(color.FgGreen).SprintFunc()
	failText = color.New(color.FgRed).SprintFunc()
	headText = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
	logHandle  *os.File
	cfg        *config.AppConfig
}

// closeLog flushes the logger and closes the --log-file handle, if any.
func (o *rootOptions) closeLog() {
	applog.Sync()
	if o.logHandle != nil {
		_ = o.logHandle.Close()
		o.logHandle = nil
	}
}

// Execute runs the exemplar command tree.
func Execute() {
	opts := &rootOptions{}
	err := newRootCmd(opts).Execute()
	// Post-run hooks are skipped when a command fails.
	opts.closeLog()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "exemplar",
		Short:         "exemplar: retrieval of labeled prompt examples with a protected evaluation holdout",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			out, err := opts.logOutput(cmd)
			if err != nil {
				return err
			}
			applog.Init(applog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})
			opts.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.closeLog()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (defaults to ./config.yaml or ~/.config/exemplar/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stderr")

	cmd.AddCommand(
		newChatCmd(opts),
		newServeCmd(opts),
		newRefreshCmd(opts),
		newQueryCmd(opts),
		newHoldoutCmd(opts),
		newEvaluateCmd(opts),
	)
	return cmd
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

// logOutput keeps logs off the terminal while the TUI owns it.
func (o *rootOptions) logOutput(cmd *cobra.Command) (io.Writer, error) {
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		o.logHandle = f
		return f, nil
	}
	if cmd.Name() == "chat" {
		return io.Discard, nil
	}
	return cmd.ErrOrStderr(), nil
}
