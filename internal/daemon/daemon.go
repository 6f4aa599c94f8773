// Package daemon wires every adapter (LLM client, SQLite session store,
// prompt renderer, red-flag registry, filesystem policy, subprocess
// runner, telemetry) into a FlowRunner and app.Service, then serves the
// read-only HTTP facade.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/makerflow/runner/internal/config"
	"github.com/makerflow/runner/internal/core/app"
	"github.com/makerflow/runner/internal/core/runner"
	"github.com/makerflow/runner/internal/fsutil"
	"github.com/makerflow/runner/internal/httpapi"
	"github.com/makerflow/runner/internal/llmclient"
	"github.com/makerflow/runner/internal/promptrender"
	"github.com/makerflow/runner/internal/redflag"
	"github.com/makerflow/runner/internal/store/sqlite"
	"github.com/makerflow/runner/internal/subprocess"
	"github.com/makerflow/runner/internal/telemetry"
)

// Options are the knobs the CLI exposes.
type Options struct {
	Version string

	ConfigPath    string
	DBPath        string
	ListenAddr    string
	WorkingDir    string
	LLMBaseURL    string
	LLMAPIKey     string
	MaxConcurrent int
	RateLimit     float64
	RateBurst     int
	WriteGlobs    []string
	WatchConfig   bool
}

// systemClock implements ports.Clock with wall-clock time.
type systemClock struct{}

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }

// Daemon owns the listener, the resolved adapters, and the config watcher
// for the lifetime of one process.
type Daemon struct {
	opts   Options
	logger *slog.Logger

	store    *sqlite.Store
	watcher  *config.Watcher
	server   *http.Server
	ln       net.Listener
	resolver *config.Resolver

	mu      sync.Mutex
	started bool
}

// New builds a Daemon, loading configuration and opening the session store
// but without binding a listener yet (that happens in Start).
func New(opts Options, logger *slog.Logger) (*Daemon, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := sqlite.Open(sqlite.Config{Path: opts.DBPath, WAL: true})
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	return &Daemon{
		opts:     opts,
		logger:   logger,
		store:    store,
		resolver: config.NewResolver(cfg),
	}, nil
}

// Start builds the LLM client stack, the FlowRunner, and the HTTP server,
// then blocks serving requests until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	providers, err := telemetry.Setup(ctx, "makerd", logWriter{d.logger})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	sink := telemetry.NewSlogSink(d.logger, providers.TracerProvider.Tracer("makerd"), providers.EventCounters, ctx)

	llm := d.buildLLMClient()

	renderer := promptrender.New()
	fs := fsutil.Local{Root: d.opts.WorkingDir}
	policy := fsutil.Policy{AllowedWriteGlobs: d.opts.WriteGlobs}
	runCommand := subprocess.New(d.opts.WorkingDir, 5*time.Minute).Run

	redFlagSpecs := make(map[string]redflag.Spec, len(d.resolver.RedFlaggerSpecs()))
	for name, spec := range d.resolver.RedFlaggerSpecs() {
		redFlagSpecs[name] = redflag.Spec{
			Name:           spec.Name,
			MaxTokens:      spec.MaxTokens,
			Language:       spec.Language,
			ExtractXML:     spec.ExtractXML,
			Model:          spec.Model,
			PromptTemplate: spec.PromptTemplate,
		}
	}
	redFlagRegistry := redflag.NewRegistry(redFlagSpecs, llm, renderer)

	maxConcurrent := d.opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}

	flowRunner := runner.NewFlowRunner(
		llm,
		maxConcurrent,
		d.resolver,
		d.resolver.RunnerOptions(),
		renderer,
		fs,
		systemClock{},
		sink,
		redFlagRegistry.Resolve,
		policy.Validate,
		runCommand,
	)

	svc := app.New(flowRunner, d.store, systemClock{})

	if d.opts.WatchConfig {
		w, err := config.NewWatcher(d.opts.ConfigPath, d.logger)
		if err != nil {
			return fmt.Errorf("starting config watcher: %w", err)
		}
		d.watcher = w
		w.Start(ctx)
		go d.applyConfigUpdates(ctx)
	}

	ln, err := net.Listen("tcp", d.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", d.opts.ListenAddr, err)
	}
	d.ln = ln

	handler := httpapi.NewServer(svc, d.logger)
	d.server = &http.Server{Handler: handler}

	d.logger.Info("makerd listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- d.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Addr returns the bound listener address, valid only after Start has run.
func (d *Daemon) Addr() string {
	if d.ln == nil {
		return ""
	}
	return d.ln.Addr().String()
}

// Shutdown gracefully stops the HTTP server and releases the config
// watcher and session store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	if d.watcher != nil {
		d.watcher.Stop()
	}

	var shutdownErr error
	if d.server != nil {
		shutdownErr = d.server.Shutdown(ctx)
	}
	if err := d.store.Close(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}

func (d *Daemon) applyConfigUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case resolved, ok := <-d.watcher.Updates:
			if !ok {
				return
			}
			d.resolver.Replace(resolved)
			d.logger.Info("runtime configuration reloaded")
		}
	}
}

func (d *Daemon) buildLLMClient() *llmclient.RateLimited {
	base := llmclient.NewHTTPClient(d.opts.LLMBaseURL, d.opts.LLMAPIKey)
	retrying := llmclient.NewRetrying(base, llmclient.DefaultRetryConfig())

	rate := d.opts.RateLimit
	if rate <= 0 {
		rate = 2
	}
	burst := d.opts.RateBurst
	if burst < 1 {
		burst = 2
	}
	return llmclient.NewRateLimited(retrying, rate, burst)
}

// logWriter adapts an *slog.Logger into an io.Writer for the trace
// exporter, emitting each write as a single debug-level log line.
type logWriter struct{ logger *slog.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Debug(string(p))
	return len(p), nil
}
