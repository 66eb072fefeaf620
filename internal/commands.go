package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/starford/maplab/internal/boardservice"
	"github.com/starford/maplab/internal/export"
	"github.com/starford/maplab/internal/mcpserver"
	"github.com/starford/maplab/internal/models"
)

// RunMCP serves the board tools over stdio as the configured assistant.
// Edits are flushed to storage and, when a relay is configured, reach live
// servers immediately.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}
	cfg := app.config
	logger, _ := app.newLogger()

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

	svc := boardservice.NewService(store, boardservice.WithLogger(logger))
	srv := mcpserver.New(svc, models.Participant{
		Info: models.UserInfo{
			ID:    cfg.Assistant.ID,
			Name:  cfg.Assistant.Name,
			Color: cfg.Assistant.Color,
		},
		ReadOnly: cfg.Assistant.ReadOnly,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.RunFlusher(gCtx, cfg.Storage.FlushInterval)
	})
	if rl != nil {
		g.Go(func() error {
			return svc.RunRelay(gCtx, rl)
		})
	}
	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server listening on stdio")
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// ExportRoom writes the stored board of room to out as a PDF.
func ExportRoom(ctx context.Context, room string, out io.Writer, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}
	logger, _ := app.newLogger()

	store, closeStore, err := app.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	svc := boardservice.NewService(store, boardservice.WithLogger(logger))
	r, err := svc.Room(ctx, room)
	if err != nil {
		return fmt.Errorf("export %s: %w", room, err)
	}
	notes := r.Notes()
	if err := export.PDF(out, room, notes); err != nil {
		return fmt.Errorf("export %s: %w", room, err)
	}
	logger.Info("board exported", slog.String("room", room), slog.Int("notes", len(notes)))
	return nil
}
