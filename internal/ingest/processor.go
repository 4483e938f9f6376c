// Package ingest processes newly created sources in the background: it
// extracts their text, counts chunks and indexes them for search.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/keyword"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/storage"
	"github.com/varunkrunch/opennotebook/pkg/utils"
)

// MetaFilePath is the source metadata key holding the stored upload path.
const MetaFilePath = "file_path"

// MetaError is the source metadata key holding the processing failure.
const MetaError = "error"

const maxTitleLen = 80

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("processor stopped")

// Processor moves sources from pending through processing to completed or failed.
type Processor struct {
	store     storage.Storage
	index     keyword.SourceIndex
	extractor *Extractor
	chunker   *Chunker
	logger    *zap.Logger

	queue   chan string
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithChunking sets the chunk size and overlap in words.
func WithChunking(size, overlap int) Option {
	return func(p *Processor) { p.chunker = NewChunker(size, overlap) }
}

// WithQueueSize sets how many source ids may wait for processing.
func WithQueueSize(n int) Option {
	return func(p *Processor) { p.queue = make(chan string, n) }
}

// NewProcessor creates a processor. index may be nil.
func NewProcessor(store storage.Storage, index keyword.SourceIndex, opts ...Option) *Processor {
	p := &Processor{
		store:     store,
		index:     index,
		extractor: NewExtractor(),
		chunker:   NewChunker(512, 50),
		logger:    zap.NewNop(),
		queue:     make(chan string, 64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the worker until ctx is done or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-p.queue:
				if !ok {
					return
				}
				if err := p.Process(ctx, id); err != nil {
					p.logger.Warn("source processing failed", zap.String("source_id", id), zap.Error(err))
				}
			}
		}
	}()
}

// Enqueue schedules a source for processing.
func (p *Processor) Enqueue(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	p.queue <- id
	return nil
}

// Stop drains the queue and waits for the worker to exit.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Process runs one source through the pipeline. Sources past pending are
// left untouched. Extraction failures mark the source failed and are not
// returned; storage failures are.
func (p *Processor) Process(ctx context.Context, id string) error {
	src, err := p.store.GetSource(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}
	if src.Status != models.StatusPending {
		return nil
	}
	src.Status = models.StatusProcessing
	if err := p.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to mark source processing: %w", err)
	}

	text, err := p.text(src)
	if err != nil {
		p.logger.Debug("extraction failed", zap.String("source_id", id), zap.Error(err))
		return p.fail(ctx, src, err)
	}
	src.FullText = text
	src.EmbeddedChunks = len(p.chunker.Chunk(src.ID, text))
	if src.Title == "" {
		src.Title = utils.Truncate(utils.FirstLine(text), maxTitleLen)
	}
	if p.index != nil {
		indexed := *src
		indexed.FullText = Normalize(text)
		if err := p.index.Index(ctx, &indexed); err != nil {
			return p.fail(ctx, src, err)
		}
	}
	src.Status = models.StatusCompleted
	if err := p.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to mark source completed: %w", err)
	}
	p.logger.Debug("source processed",
		zap.String("source_id", id),
		zap.Int("chunks", src.EmbeddedChunks))
	return nil
}

func (p *Processor) text(src *models.Source) (string, error) {
	if src.Type != models.SourceUpload {
		return src.FullText, nil
	}
	fp, _ := src.Metadata[MetaFilePath].(string)
	if fp == "" {
		return "", errors.New("upload has no stored file")
	}
	return p.extractor.ExtractFile(fp)
}

func (p *Processor) fail(ctx context.Context, src *models.Source, cause error) error {
	src.Status = models.StatusFailed
	if src.Metadata == nil {
		src.Metadata = map[string]interface{}{}
	}
	src.Metadata[MetaError] = cause.Error()
	if err := p.store.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("failed to mark source failed: %w", err)
	}
	return nil
}

// DeriveTitle picks a title for a source created without one: the upload
// file name, the URL's last path segment or host, or the first line of text.
func DeriveTitle(in models.SourceInput) string {
	if t := strings.TrimSpace(in.Title); t != "" {
		return t
	}
	switch in.Type {
	case models.SourceUpload:
		return filepath.Base(in.FileName)
	case models.SourceLink:
		u, err := url.Parse(strings.TrimSpace(in.URL))
		if err != nil || u.Host == "" {
			return utils.Truncate(strings.TrimSpace(in.URL), maxTitleLen)
		}
		if base := path.Base(u.Path); base != "." && base != "/" {
			return u.Host + "/" + base
		}
		return u.Host
	}
	return utils.Truncate(utils.FirstLine(in.Content), maxTitleLen)
}
