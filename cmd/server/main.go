package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/adaptive"
	"github.com/p-n-ai/pai-adaptive/internal/api"
	"github.com/p-n-ai/pai-adaptive/internal/curriculum"
	"github.com/p-n-ai/pai-adaptive/internal/platform/cache"
	"github.com/p-n-ai/pai-adaptive/internal/platform/config"
	"github.com/p-n-ai/pai-adaptive/internal/platform/database"
	"github.com/p-n-ai/pai-adaptive/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer deps.close()

	engine := adaptive.NewEngine(adaptive.EngineConfig{
		Store:            deps.store,
		MasteryThreshold: cfg.Engine.MasteryThreshold,
		KFactor:          cfg.Engine.KFactor,
		DefaultRating:    cfg.Engine.DefaultRating,
		Rand:             newRandom(cfg.Engine.RandomSeed),
	})

	mux := newMux(api.NewHandler(engine), deps.checks...)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Driver, "cache", cfg.Cache.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// check is a named readiness probe.
type check struct {
	name string
	fn   func(ctx context.Context) error
}

type dependencies struct {
	store   adaptive.Store
	checks  []check
	closers []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// setup builds the store selected by config along with its readiness probes.
func setup(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		loader, err := curriculum.NewLoader(cfg.CurriculumPath)
		if err != nil {
			return nil, fmt.Errorf("loading curriculum: %w", err)
		}
		mem := adaptive.NewMemoryStore()
		mem.LoadCurriculum(loader.Chapters())
		deps.store = mem

	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, db.Close)
		deps.checks = append(deps.checks, check{name: "database", fn: db.HealthCheck})

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				deps.close()
				return nil, err
			}
		}

		pg, err := adaptive.NewPostgresStore(db.Pool)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.store = pg

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = c.Close() })
		deps.checks = append(deps.checks, check{name: "cache", fn: c.HealthCheck})
		deps.store = adaptive.NewCachedStore(deps.store, c, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}

	return deps, nil
}

// newRandom returns a seeded source, or nil to let the engine seed from the clock.
func newRandom(seed uint64) adaptive.Random {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// newMux creates the HTTP router with the API and health check endpoints.
func newMux(h *api.Handler, checks ...check) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	if h != nil {
		h.Register(mux)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for _, c := range checks {
			if err := c.fn(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "failing": c.name})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
