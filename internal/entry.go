// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/localdb"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/notify"
	"github.com/starford/raido/internal/remote"
	"github.com/starford/raido/internal/service"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/syncer"
)

// snapshotName is the key the full entity-store image is persisted under.
const snapshotName = "entities"

// core bundles the wired sync stack shared by the HTTP and MCP surfaces.
type core struct {
	db       *localdb.DB
	entities *store.Store
	coord    *syncer.Coordinator
	svc      *service.Service
	notifier *notify.Notifier
	broker   *notify.Broker
	signals  *notify.FileSignal
}

func (c *core) close() {
	if c.notifier != nil {
		c.notifier.Close()
	}
	c.db.Close()
}

// buildCore wires localdb, store, sync coordinator, notifier, and service.
func buildCore(ctx context.Context, cfg *Config, client remote.Client, logger *slog.Logger, withBroker bool) (*core, error) {
	db, err := localdb.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init local db: %w", err)
	}

	deviceID, err := db.DeviceID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("device identity: %w", err)
	}

	entities := store.New(logger)
	if data, err := db.LoadSnapshot(snapshotName); err == nil {
		if err := entities.Restore(data); err != nil {
			logger.Warn("snapshot restore failed, starting empty", slog.String("error", err.Error()))
		}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		logger.Warn("snapshot load failed, starting empty", slog.String("error", err.Error()))
	}

	if client == nil {
		client, err = remote.NewHTTP(cfg.Remote.URL, cfg.Remote.Token)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init remote client: %w", err)
		}
	}

	coord := syncer.New(syncer.Config{
		Account: cfg.Account.ID,
		Device:  deviceID,
		Client:  client,
		Store:   entities,
		Cursors: db,
		Persist: func() error {
			data, err := entities.Snapshot()
			if err != nil {
				return err
			}
			return db.SaveSnapshot(snapshotName, data)
		},
		Logger: logger,
	})

	c := &core{db: db, entities: entities, coord: coord}

	transports := []notify.Transport{
		notify.NewLocal(func(sig notify.Signal) { coord.HandleSignal(ctx, sig) }),
	}
	if withBroker {
		c.broker = notify.NewBroker(2 * time.Second)
		transports = append(transports, c.broker)
	}
	if cfg.Signals.Dir != "" {
		fs, err := notify.NewFileSignal(cfg.Signals.Dir, logger)
		if err != nil {
			logger.Warn("signal-file transport disabled", slog.String("error", err.Error()))
		} else {
			c.signals = fs
			transports = append(transports, fs)
		}
	}
	c.notifier = notify.New(logger, transports...)

	var onChange service.ChangeFunc
	if c.broker != nil {
		onChange = c.broker.PublishChange
	}
	c.svc = service.New(service.Config{
		Store:    entities,
		Sync:     coord,
		Notifier: c.notifier,
		Device:   deviceID,
		Logger:   logger,
		OnChange: onChange,
	})

	logger.Info("Sync core ready",
		slog.String("account", cfg.Account.ID),
		slog.String("device", deviceID),
		slog.String("remote", cfg.Remote.URL))
	return c, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_url", cfg.Remote.URL),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	g, gCtx := errgroup.WithContext(ctx)

	c, err := buildCore(gCtx, cfg, app.client, logger, true)
	if err != nil {
		return err
	}
	defer c.close()

	// Initial pull; failure is recoverable, the poll loop retries.
	if err := c.coord.Pull(gCtx, syncer.PurposeLive); err != nil {
		logger.Warn("initial pull failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(c.broker.ServeHTTP))

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Fallback poll: the authoritative convergence backstop.
	g.Go(func() error {
		c.coord.RunPoll(gCtx, time.Duration(cfg.Remote.PollIntervalSeconds)*time.Second)
		return nil
	})

	// Signal-file watcher for sibling processes.
	if c.signals != nil {
		g.Go(func() error {
			return c.signals.Watch(gCtx, func(sig notify.Signal) { c.coord.HandleSignal(gCtx, sig) })
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP wires the sync core without the HTTP surface and serves the MCP
// tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// Logs must go to stderr: stdout carries the MCP transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	c, err := buildCore(ctx, cfg, app.client, logger, false)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.coord.Pull(ctx, syncer.PurposeLive); err != nil {
		logger.Warn("initial pull failed", slog.String("error", err.Error()))
	}

	return mcpserver.New(c.svc).ServeStdio()
}
