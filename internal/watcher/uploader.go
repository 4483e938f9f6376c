package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/fileid"
	"github.com/varunkrunch/opennotebook/internal/models"
)

// Sources is the part of the workspace the uploader mutates.
type Sources interface {
	CreateSource(ctx context.Context, ref models.NotebookRef, in models.SourceInput) (models.Source, error)
	DeleteSource(ctx context.Context, id string) error
}

// Uploader turns file changes into upload sources of one notebook. A changed
// file replaces the source it was previously uploaded as.
type Uploader struct {
	sources  Sources
	registry *fileid.Registry
	notebook models.NotebookRef
	maxBytes int64
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewUploader creates an uploader targeting notebook. maxBytes <= 0 disables the size limit.
func NewUploader(sources Sources, registry *fileid.Registry, notebook models.NotebookRef, maxBytes int64, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{sources: sources, registry: registry, notebook: notebook, maxBytes: maxBytes, logger: logger}
}

var _ Handler = (*Uploader)(nil)

// Changed uploads path unless it is unchanged since its last upload.
func (u *Uploader) Changed(ctx context.Context, path string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if u.registry.Unchanged(path, info) {
		return
	}
	if u.maxBytes > 0 && info.Size() > u.maxBytes {
		u.logger.Warn("skipping file over upload limit", zap.String("path", path), zap.Int64("size", info.Size()))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		u.logger.Warn("failed to read watched file", zap.String("path", path), zap.Error(err))
		return
	}
	if prev, ok := u.registry.Get(path); ok {
		if err := u.sources.DeleteSource(ctx, prev.SourceID); err != nil && !apperr.IsNotFound(err) {
			u.logger.Warn("failed to replace source", zap.String("path", path), zap.String("source_id", prev.SourceID), zap.Error(err))
			return
		}
	}
	name := filepath.Base(path)
	src, err := u.sources.CreateSource(ctx, u.notebook, models.SourceInput{
		Type:     models.SourceUpload,
		Title:    name,
		FileName: name,
		File:     data,
		Embed:    true,
	})
	if err != nil {
		u.logger.Warn("failed to upload watched file", zap.String("path", path), zap.Error(err))
		return
	}
	if err := u.registry.Put(fileid.Entry{Path: path, SourceID: src.ID, Size: info.Size(), ModTime: info.ModTime().UnixNano()}); err != nil {
		u.logger.Warn("failed to record upload", zap.String("path", path), zap.Error(err))
	}
	u.logger.Info("uploaded watched file", zap.String("path", path), zap.String("source_id", src.ID))
}

// Removed deletes the source path was uploaded as.
func (u *Uploader) Removed(ctx context.Context, path string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	prev, ok, err := u.registry.Delete(path)
	if err != nil {
		u.logger.Warn("failed to update file registry", zap.String("path", path), zap.Error(err))
	}
	if !ok {
		return
	}
	if err := u.sources.DeleteSource(ctx, prev.SourceID); err != nil && !apperr.IsNotFound(err) {
		u.logger.Warn("failed to delete source of removed file", zap.String("path", path), zap.Error(err))
		return
	}
	u.logger.Info("deleted source of removed file", zap.String("path", path), zap.String("source_id", prev.SourceID))
}
