package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/fileid"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/watcher"
)

func runWatch(args []string, stderr io.Writer) error {
	flags := newClientFlags("watch", stderr)
	dirs := flags.fs.String("dir", "", "comma-separated directories to watch (default from config)")
	notebook := flags.fs.String("notebook", "", "notebook name to upload into (default from config)")
	if err := flags.parse(args); err != nil {
		return err
	}
	s, err := flags.open(stderr)
	if err != nil {
		return err
	}
	defer s.close()

	cfg := s.cfg
	if *dirs != "" {
		cfg.Watch.Directories = strings.Split(*dirs, ",")
	}
	if *notebook != "" {
		cfg.Watch.Notebook = *notebook
	}
	if len(cfg.Watch.Directories) == 0 {
		return fmt.Errorf("no directories to watch; set watch.directories or pass --dir")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.ws.Start(ctx); err != nil {
		return err
	}
	target, err := ensureNotebook(ctx, s, cfg.Watch.Notebook)
	if err != nil {
		return err
	}

	registry, err := fileid.Open(cfg.Watch.StatePath)
	if err != nil {
		return err
	}
	uploader := watcher.NewUploader(s.ws, registry, models.ByName(target.Name), cfg.Sources.MaxUploadBytes, s.logger.Named("uploader"))
	w := watcher.New(cfg.Watch.Directories, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(), uploader,
		watcher.WithLogger(s.logger.Named("watcher")))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()
	w.Sync(ctx)

	fmt.Fprintf(stderr, "Watching %s into notebook %q\n", strings.Join(cfg.Watch.Directories, ", "), target.Name)
	s.logger.Info("watching",
		zap.Strings("directories", cfg.Watch.Directories),
		zap.String("notebook", target.ID),
		zap.Int("tracked_files", registry.Len()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	<-sigChan
	return nil
}

// ensureNotebook returns the notebook named name, creating it when missing.
func ensureNotebook(ctx context.Context, s *session, name string) (models.Notebook, error) {
	n, err := s.ws.NotebookByName(ctx, name)
	if err == nil {
		return n, nil
	}
	if !apperr.IsNotFound(err) {
		return models.Notebook{}, err
	}
	return s.ws.CreateNotebook(ctx, models.NotebookInput{Name: name})
}
