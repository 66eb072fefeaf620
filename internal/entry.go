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

	"github.com/starford/maplab/internal/api"
	"github.com/starford/maplab/internal/boardservice"
	"github.com/starford/maplab/internal/discovery"
	"github.com/starford/maplab/internal/sse"
	"github.com/starford/maplab/internal/ws"
	pkgconfig "github.com/starford/maplab/pkg/config"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, level := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_mode", cfg.Storage.Mode),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("relay", cfg.Relay.Enabled()),
		slog.Bool("discovery", cfg.Discovery.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	rl, err := app.newRelay()
	if err != nil {
		return err
	}
	if rl != nil {
		defer rl.Close()
	}

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.SummaryThrottle)

	// Room registry.
	svc := boardservice.NewService(store,
		boardservice.WithPublisher(broker),
		boardservice.WithLogger(logger))

	apiRouter := api.NewRouter(svc, cfg.Auth.JWTEnabled(), cfg.Auth.Secret, broker, ws.NewHandler(logger, nil))

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.AccessLog(logger))
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if rl != nil {
			pingCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := rl.Ping(pingCtx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"relay unavailable"}`))
				return
			}
		}
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

	g, gCtx := errgroup.WithContext(ctx)

	// Periodic snapshot backup.
	g.Go(func() error {
		return svc.RunFlusher(gCtx, cfg.Storage.FlushInterval)
	})

	// Cross-instance relay.
	if rl != nil {
		g.Go(func() error {
			if err := svc.RunRelay(gCtx, rl); err != nil {
				return fmt.Errorf("relay: %w", err)
			}
			return nil
		})
	}

	// LAN advertisement. Multicast is often unavailable in containers, so a
	// failure is logged and the server keeps running.
	if cfg.Discovery.Enabled {
		g.Go(func() error {
			err := discovery.Run(gCtx, discovery.Advertisement{
				Instance: cfg.Discovery.Instance,
				Service:  cfg.Discovery.Service,
				Port:     cfg.App.HTTP.Port,
				TXT:      []string{"path=/api"},
			}, logger)
			if err != nil {
				logger.Warn("mdns advertisement disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Log level hot reload.
	if app.configPath != "" {
		g.Go(func() error {
			err := pkgconfig.Watch(gCtx, app.configPath, NewDefaultConfig,
				func(next *Config) {
					if next.App.LogLevel != level.Level() {
						level.Set(next.App.LogLevel)
						logger.Info("log level changed", slog.String("log_level", next.App.LogLevel.String()))
					}
				},
				func(err error) {
					logger.Warn("config reload failed", slog.String("error", err.Error()))
				})
			if err != nil {
				logger.Warn("config watch disabled", slog.String("error", err.Error()))
			}
			return nil
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
		defer signal.Stop(quit)

		var err error
		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			err = errShutdown
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Ends open event streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group's other workers after a signal.
var errShutdown = errors.New("shutdown requested")
