package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/planforge/finmodel/config"
	"github.com/planforge/finmodel/httpapi"
	"github.com/planforge/finmodel/jobrunner"
	"github.com/planforge/finmodel/llmclient"
	_ "github.com/planforge/finmodel/llmclient/providers"
	"github.com/planforge/finmodel/model"
	"github.com/planforge/finmodel/pipeline"
	"github.com/planforge/finmodel/promptregistry"
	"github.com/planforge/finmodel/store"
)

// App wires every package into a running process: the state store, the LLM
// client, the job executor, the pipeline controller, and the HTTP router on
// top of it. main.go's subcommands drive App's lifecycle; App itself knows
// nothing about cobra.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store      store.Store
	executor   jobrunner.Executor
	controller *pipeline.Controller
	apiServer  *httpapi.Server

	httpServer *http.Server
	watcher    *config.Watcher
}

// NewApp opens the store, builds the LLM client and job executor, and wires
// the pipeline controller. It does not start listening; call Serve for that.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	s, err := store.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := buildModelRegistry(cfg.Providers)
	audit := llmclient.NewAuditLogger(auditPersistFunc(s, logger), logger)
	client := llmclient.NewClient(registry,
		llmclient.WithLogger(logger),
		llmclient.WithAuditLogger(audit),
		llmclient.WithRetryConfig(llmclient.DefaultRetryConfig()),
	)

	prompts := promptregistry.NewRegistry()
	promptregistry.RegisterDefaults(prompts)
	if err := loadPromptOverrides(ctx, s, prompts); err != nil {
		s.Close()
		return nil, fmt.Errorf("load prompt overrides: %w", err)
	}

	runner := jobrunner.NewRunner(s, jobrunner.Config{
		HeartbeatStart:    25,
		HeartbeatCeiling:  95,
		HeartbeatTau:      120 * time.Second,
		HeartbeatInterval: 4 * time.Second,
		SoftTimeout:       cfg.Jobs.SoftTimeout,
		HardTimeout:       cfg.Jobs.HardTimeout,
	})
	executor, err := jobrunner.Open(ctx, cfg.NATS.URL, runner, cfg.Jobs.WorkerConcurrency, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open job executor: %w", err)
	}

	tier := model.Standard
	controller := pipeline.NewController(s, executor, client, prompts, tier)

	// The spreadsheet template writer is an external collaborator this
	// module never implements (see emitter.TemplateWriter); controller.SetExporter
	// is left uncalled here so a deployment without one fails the export
	// request itself with a clear error instead of panicking on a nil call.
	// A deployment with a real writer calls controller.SetExporter(emitter.NewService(s, w))
	// before Serve.

	apiServer := httpapi.NewServer(s, controller, prompts)
	httpapi.Version = Version

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      s,
		executor:   executor,
		controller: controller,
		apiServer:  apiServer,
	}, nil
}

// Serve starts the HTTP listener and, if a config file is in use, the
// fsnotify-backed reload watcher, then blocks until ctx is cancelled.
func (a *App) Serve(ctx context.Context, loader *config.Loader, configPath string) error {
	mux := http.NewServeMux()
	a.apiServer.RegisterHTTPHandlers("/", mux)

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, loader, a.logger, a.onConfigChange)
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			a.logger.Warn("config watcher disabled", "error", err)
		} else {
			a.watcher = w
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.Server.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	return a.Shutdown(10 * time.Second)
}

// onConfigChange logs a reload; most fields (store DSN, job concurrency)
// require a restart to take effect. Only the fields a live process can
// safely rebind are worth wiring deeper than a log line without risking a
// half-migrated state store underneath in-flight requests.
func (a *App) onConfigChange(cfg *config.Config) {
	a.logger.Info("config reloaded", "addr", cfg.Server.Addr, "store_dsn_changed", cfg.Store.DSN != a.cfg.Store.DSN)
}

// Shutdown drains the HTTP listener, stops the config watcher, closes the
// job executor, and closes the store, in that order.
func (a *App) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.executor.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// buildModelRegistry starts from the built-in catalog and applies the
// config's Ollama endpoint override, if set. The other provider settings
// (default provider, default model, temperature, request timeout) are not
// applied to the registry.
func buildModelRegistry(p config.ProvidersConfig) *model.Registry {
	registry := model.NewDefaultRegistry()
	if p.OllamaEndpoint != "" {
		if ep := registry.GetEndpoint("ollama-standard"); ep != nil {
			ep.URL = p.OllamaEndpoint
		}
	}
	return registry
}

// loadPromptOverrides replays every currently-active global prompt version
// from the store into the in-process registry, so a restart doesn't lose
// an admin's prior activation until the next explicit call.
func loadPromptOverrides(ctx context.Context, s store.Store, prompts *promptregistry.Registry) error {
	for _, def := range prompts.ListBuiltins() {
		v, err := s.GetActivePrompt(ctx, "", def.Key)
		if err != nil {
			continue
		}
		prompts.Activate(&promptregistry.Version{ProjectID: "", Key: def.Key, Text: v.Text})
	}
	return nil
}

// auditPersistFunc persists provider call records as audit rows. CallRecord
// carries no project/run scoping — that context lives one level up, in the
// agents package's own call sites — so these rows are process-wide audit
// trail entries keyed by request ID, with the call's tier in the Phase
// column, rather than per-project history; per-project audit detail comes
// from the edits/history endpoints.
func auditPersistFunc(s store.Store, logger *slog.Logger) llmclient.PersistFunc {
	return func(ctx context.Context, record *llmclient.CallRecord) error {
		detail, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return s.SaveAuditRecord(ctx, &store.AuditRecord{
			ID:     record.RequestID,
			Phase:  string(record.Tier),
			Action: "llm_call",
			Detail: string(detail),
		})
	}
}
