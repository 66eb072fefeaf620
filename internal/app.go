package internal

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/starford/maplab/internal/relay"
	"github.com/starford/maplab/internal/storage"
)

func newApplication(opts []Option, defaultOutput io.Writer) (*application, error) {
	app := &application{logOutput: defaultOutput}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger installs a JSON logger whose level can be changed at runtime.
func (a *application) newLogger() (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(a.config.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger, level
}

// openStore opens the configured snapshot provider. The returned func
// releases it.
func (a *application) openStore() (storage.Provider, func() error, error) {
	cfg := a.config.Storage
	switch cfg.Mode {
	case StorageModeFS:
		store, err := storage.NewFS(cfg.FS.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init storage: %w", err)
		}
		return store, func() error { return nil }, nil
	default:
		store, err := storage.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init storage: %w", err)
		}
		return store, store.Close, nil
	}
}

// newRelay connects to the configured Redis relay, or returns nil when none
// is configured.
func (a *application) newRelay() (*relay.Client, error) {
	cfg := a.config.Relay
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := relay.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, cfg.ChannelPrefix, ulid.Make().String())
	if err != nil {
		return nil, fmt.Errorf("init relay: %w", err)
	}
	return client, nil
}
