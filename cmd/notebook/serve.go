package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/ingest"
	"github.com/varunkrunch/opennotebook/internal/keyword"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/server"
	"github.com/varunkrunch/opennotebook/internal/storage"
	"github.com/varunkrunch/opennotebook/pkg/utils"
)

func runServe(args []string, stderr io.Writer) error {
	fs := newClientFlags("serve", stderr)
	host := fs.fs.String("host", "", "listen host (default from config)")
	port := fs.fs.Int("port", 0, "listen port (default from config)")
	if err := fs.parse(args); err != nil {
		return err
	}
	cfg, resolvedConfigPath, err := loadConfig(*fs.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	debugMode := cfg.Debug || *fs.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SearchIndexPath), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	idx, err := keyword.NewBleveIndex(cfg.Storage.SearchIndexPath)
	if err != nil {
		return fmt.Errorf("failed to open search index: %w", err)
	}
	defer idx.Close()

	processor := ingest.NewProcessor(store, idx,
		ingest.WithChunking(cfg.Sources.ChunkSize, cfg.Sources.ChunkOverlap),
		ingest.WithLogger(logger.Named("ingest")),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor.Start(ctx)
	defer processor.Stop()
	requeuePending(ctx, store, processor, logger)

	srv := server.NewServer(store, idx, cfg, logger, server.WithProcessor(processor))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	select {
	case <-sigChan:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// requeuePending queues sources left pending by a previous run.
func requeuePending(ctx context.Context, store storage.Storage, p *ingest.Processor, logger *zap.Logger) {
	notebooks, err := store.ListNotebooks(ctx)
	if err != nil {
		logger.Warn("failed to list notebooks for requeue", zap.Error(err))
		return
	}
	queued := 0
	for _, n := range notebooks {
		sources, err := store.ListSources(ctx, n.ID)
		if err != nil {
			logger.Warn("failed to list sources for requeue", zap.String("notebook", n.ID), zap.Error(err))
			continue
		}
		for _, src := range sources {
			if src.Status != models.StatusPending {
				continue
			}
			if err := p.Enqueue(src.ID); err != nil {
				return
			}
			queued++
		}
	}
	if queued > 0 {
		logger.Info("requeued pending sources", zap.Int("count", queued))
	}
}
