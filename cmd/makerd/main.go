package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/makerflow/runner/internal/daemon"
	internallog "github.com/makerflow/runner/internal/log"
)

// Version information (injected via ldflags at build time).
var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "makerd",
		Short:         "makerd orchestrates MAKER-style decompose/vote/solve workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd(), newRunCmd(), newResumeCmd(), newListCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var opts daemon.Options
	opts.Version = version

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the makerd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := internallog.New(internallog.FromEnv())
			slog.SetDefault(logger)

			d, err := daemon.New(opts, logger)
			if err != nil {
				return fmt.Errorf("starting daemon: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() { errCh <- d.Start(ctx) }()

			select {
			case sig := <-sigCh:
				logger.Info("received signal, shutting down", "signal", sig.String())
				cancel()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer shutdownCancel()
				return d.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ConfigPath, "config", "makerd.yaml", "path to the domain configuration file")
	flags.StringVar(&opts.DBPath, "db", "makerd.sqlite", "path to the SQLite session store")
	flags.StringVar(&opts.ListenAddr, "listen", "127.0.0.1:8090", "HTTP listen address")
	flags.StringVar(&opts.WorkingDir, "working-dir", ".", "root directory for overwrite_file appliers and verifier commands")
	flags.StringVar(&opts.LLMBaseURL, "llm-base-url", "http://localhost:11434/v1", "base URL of the chat-completions-compatible LLM endpoint")
	flags.StringVar(&opts.LLMAPIKey, "llm-api-key", os.Getenv("MAKERD_LLM_API_KEY"), "bearer token for the LLM endpoint")
	flags.IntVar(&opts.MaxConcurrent, "max-concurrent-llm", 4, "max concurrent in-flight LLM calls")
	flags.Float64Var(&opts.RateLimit, "llm-rate-limit", 2, "sustained LLM requests per second")
	flags.IntVar(&opts.RateBurst, "llm-rate-burst", 2, "LLM request burst allowance")
	flags.StringSliceVar(&opts.WriteGlobs, "allowed-write-globs", nil, "glob patterns the overwrite_file applier may write to (empty allows any path passing the safety contract)")
	flags.BoolVar(&opts.WatchConfig, "watch-config", true, "hot-reload the domain configuration file on change")

	return cmd
}
