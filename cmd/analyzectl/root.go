package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kirillkom/thesis-analysis/internal/bootstrap"
	"github.com/kirillkom/thesis-analysis/internal/config"
	"github.com/kirillkom/thesis-analysis/internal/observability/logging"
)

type commandContext struct {
	appOnce sync.Once
	app     *bootstrap.App
	appErr  error
}

// ensureApp wires backends on first use so `--help` never touches them.
// Logs go to stderr; stdout carries command output and the MCP stream.
func (c *commandContext) ensureApp(ctx context.Context) (*bootstrap.App, error) {
	c.appOnce.Do(func() {
		cfg := config.Load()
		slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "analyzectl", cfg.LogLevel))
		c.app, c.appErr = bootstrap.New(ctx, cfg)
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.Close()
	}
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "analyzectl",
		Short:         "Inspect and drive thesis analyses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newReanalyzeCommand(ctx))
	rootCmd.AddCommand(newStuckCommand(ctx))
	rootCmd.AddCommand(newMCPCommand(ctx))
	return rootCmd
}
