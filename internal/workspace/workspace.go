// Package workspace binds the entity cache, the fetch and mutation
// coordinators and a Remote into the read and write operations of the client.
// It owns the invalidation table: which keys every write patches and which
// keys it marks stale.
package workspace

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/api"
	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/chat"
	"github.com/varunkrunch/opennotebook/internal/fetch"
	"github.com/varunkrunch/opennotebook/internal/mutation"
	"github.com/varunkrunch/opennotebook/internal/notify"
)

// Workspace is one client session. Its cache lives from New until Stop.
type Workspace struct {
	remote   api.Remote
	cache    *cache.EntityCache
	fetch    *fetch.Coordinator
	mutate   *mutation.Coordinator
	notifier notify.Notifier
	logger   *zap.Logger
	ids      *chat.IDs

	mu      sync.Mutex
	started bool
}

type settings struct {
	logger          *zap.Logger
	notifier        notify.Notifier
	fetchTimeout    time.Duration
	mutationTimeout time.Duration
	staleTime       time.Duration
	clock           func() time.Time
}

// Option configures a Workspace.
type Option func(*settings)

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithNotifier sets where toasts go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

// WithTimeouts sets the fixed per-request timeouts of reads and writes.
func WithTimeouts(fetchTimeout, mutationTimeout time.Duration) Option {
	return func(s *settings) {
		s.fetchTimeout = fetchTimeout
		s.mutationTimeout = mutationTimeout
	}
}

// WithStaleTime sets how long fetched data counts as fresh. Zero keeps it
// fresh until invalidated.
func WithStaleTime(d time.Duration) Option {
	return func(s *settings) { s.staleTime = d }
}

// WithClock overrides the time source of the cache and freshness checks.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.clock = now }
}

// New builds a workspace talking to remote.
func New(remote api.Remote, opts ...Option) *Workspace {
	s := settings{logger: zap.NewNop(), notifier: notify.Discard, clock: time.Now}
	for _, opt := range opts {
		opt(&s)
	}

	w := &Workspace{
		remote:   remote,
		notifier: s.notifier,
		logger:   s.logger,
		ids:      &chat.IDs{},
	}
	w.cache = cache.New(cache.WithClock(s.clock))
	w.fetch = fetch.NewCoordinator(w.cache,
		fetch.WithLogger(s.logger.Named("fetch")),
		fetch.WithTimeout(s.fetchTimeout),
		fetch.WithStaleTime(s.staleTime),
		fetch.WithClock(s.clock),
	)
	w.mutate = mutation.NewCoordinator(w.cache,
		mutation.WithLogger(s.logger.Named("mutation")),
		mutation.WithNotifier(s.notifier),
		mutation.WithTimeout(s.mutationTimeout),
		mutation.WithInvalidationHook(func(keys []cache.Key) {
			s.logger.Debug("keys invalidated", zap.Strings("keys", keyStrings(keys)))
		}),
	)
	return w
}

func keyStrings(keys []cache.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// Start loads the notebook list so the first view renders from the cache.
func (w *Workspace) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if _, err := w.Notebooks(ctx); err != nil {
		return fmt.Errorf("failed to load notebooks: %w", err)
	}
	w.logger.Debug("workspace started")
	return nil
}

// Stop waits for background fetches and drops the cache.
func (w *Workspace) Stop() {
	w.fetch.Wait()
	w.cache.Reset()
	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
	w.logger.Debug("workspace stopped")
}

// Cache exposes the cache for read-only inspection.
func (w *Workspace) Cache() *cache.EntityCache { return w.cache }

// Wait blocks until background revalidations have finished.
func (w *Workspace) Wait() { w.fetch.Wait() }

// loaderFor returns the remote read backing key, or nil for client-only keys.
func (w *Workspace) loaderFor(key cache.Key) fetch.Loader {
	param := key.Param()
	switch key.Kind() {
	case cache.KindNotebooks:
		return func(ctx context.Context) (interface{}, error) { return w.remote.ListNotebooks(ctx) }
	case cache.KindNotebook:
		return func(ctx context.Context) (interface{}, error) { return w.remote.GetNotebook(ctx, param) }
	case cache.KindNotebookByName:
		return func(ctx context.Context) (interface{}, error) { return w.remote.GetNotebookByName(ctx, param) }
	case cache.KindSources:
		return func(ctx context.Context) (interface{}, error) { return w.remote.ListSources(ctx, param) }
	case cache.KindSourcesByName:
		return func(ctx context.Context) (interface{}, error) { return w.remote.ListSourcesByName(ctx, param) }
	case cache.KindSource:
		return func(ctx context.Context) (interface{}, error) { return w.remote.GetSource(ctx, param) }
	case cache.KindNotes:
		return func(ctx context.Context) (interface{}, error) { return w.remote.ListNotes(ctx, param) }
	case cache.KindNotesByName:
		return func(ctx context.Context) (interface{}, error) { return w.remote.ListNotesByName(ctx, param) }
	case cache.KindNote:
		return func(ctx context.Context) (interface{}, error) { return w.remote.GetNote(ctx, param) }
	case cache.KindChatSessions:
		return func(ctx context.Context) (interface{}, error) { return w.remote.ListChatSessions(ctx, param) }
	case cache.KindChatSession:
		return func(ctx context.Context) (interface{}, error) { return w.remote.GetChatSession(ctx, param) }
	case cache.KindSourceSearch:
		notebookID, query, _ := strings.Cut(param, "|")
		return func(ctx context.Context) (interface{}, error) {
			return w.remote.SearchSources(ctx, notebookID, query, 0)
		}
	}
	return nil
}

// Watch subscribes fn to key. Remote-backed keys are loaded when missing
// and revalidated on invalidation for as long as the subscription lasts.
func (w *Workspace) Watch(key cache.Key, fn cache.Listener) (unsubscribe func()) {
	loader := w.loaderFor(key)
	if loader == nil {
		return w.cache.Subscribe(key, fn)
	}
	return w.fetch.Observe(key, loader, fn)
}

func read[T any](ctx context.Context, w *Workspace, key cache.Key) (T, error) {
	var zero T
	loader := w.loaderFor(key)
	if loader == nil {
		return zero, fmt.Errorf("no remote read for %s", key)
	}
	v, err := w.fetch.Query(ctx, key, loader)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %T cached under %s", v, key)
	}
	return t, nil
}

// NewComposer returns a chat composer for a notebook. sessionID may be empty
// to start a new conversation.
func (w *Workspace) NewComposer(notebookID, sessionID string) *chat.Composer {
	return chat.NewComposer(w.cache, w.mutate, w.remote, notebookID, sessionID,
		chat.WithIDs(w.ids), chat.WithLogger(w.logger.Named("chat")))
}
