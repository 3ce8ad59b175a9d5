package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/httpapi"
	"github.com/p-n-ai/pai-journeys/internal/journey"
	"github.com/p-n-ai/pai-journeys/internal/notify"
	"github.com/p-n-ai/pai-journeys/internal/platform/cache"
	"github.com/p-n-ai/pai-journeys/internal/platform/config"
	"github.com/p-n-ai/pai-journeys/internal/platform/database"
	"github.com/p-n-ai/pai-journeys/internal/progress"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	loader, err := course.NewLoader(cfg.ContentPath)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	slog.Info("content loaded", "path", cfg.ContentPath, "courses", len(loader.AllCourses()))

	checks := map[string]func(context.Context) error{}

	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		checks["database"] = db.HealthCheck
	}

	var rc *cache.Cache
	if cfg.NeedsCache() {
		rc, err = cache.Open(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer rc.Close()
		checks["cache"] = rc.HealthCheck
	}

	var kv progress.KV
	switch cfg.Store.Backend {
	case config.BackendRedis:
		if kv, err = progress.NewRedisKV(rc.Client, rc.KeyPrefix, rc.TTL); err != nil {
			return err
		}
	case config.BackendPostgres:
		pkv, err := progress.NewPostgresKV(db.Pool)
		if err != nil {
			return err
		}
		if err := db.Migrate(ctx, pkv); err != nil {
			return err
		}
		kv = pkv
	default:
		kv = progress.NewMemoryKV()
	}
	slog.Info("progress store ready", "backend", cfg.Store.Backend)

	hub := notify.NewHub(cfg.Events.Buffer)
	sinks := journey.MultiSink{hub}
	var history httpapi.History
	if cfg.Events.Persist {
		ps := journey.NewPostgresSink(db.Pool)
		if err := db.Migrate(ctx, ps); err != nil {
			return err
		}
		sinks = append(sinks, ps)
		history = ps
	}

	tracker := journey.NewTracker(journey.TrackerConfig{
		Engine: journey.NewEngine(journey.EngineConfig{}),
		KV:     kv,
		Sink:   sinks,
	})

	mux := newMux(checks)
	httpapi.New(httpapi.Config{
		Catalog: loader,
		Tracker: tracker,
		Hub:     hub,
		History: history,
	}).Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	// Event streams are hijacked connections that Shutdown does not wait for.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newMux creates the HTTP router with health check endpoints. checks are
// the backend checks readiness depends on.
func newMux(checks map[string]func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var failed []string
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				slog.Warn("readiness check failed", "check", name, "error", err)
				failed = append(failed, name)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) == 0 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ready"}`))
			return
		}
		sort.Strings(failed)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "failed": failed})
	}
}
