// Package mutation applies writes optimistically: the cache is patched before
// the remote call, then committed with the server's answer or rolled back.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/notify"
)

// GenericFailure is the toast message used when an error carries no detail.
const GenericFailure = "Something went wrong. Please try again."

// ErrPending is returned by Handle.Run while an earlier run is still pending.
var ErrPending = errors.New("mutation already pending")

// Mutation describes one remote write and its effect on the cache.
type Mutation struct {
	// Name is a short verb phrase ("create notebook") used in failure toasts and logs.
	Name string
	// Success is the title of the success toast.
	Success string
	// Optimistic patches the cache before the remote call. Optional.
	Optimistic func(tx *cache.Tx)
	// Do performs the remote call.
	Do func(ctx context.Context) (interface{}, error)
	// Commit merges the server's canonical result. Optional.
	Commit func(tx *cache.Tx, result interface{})
	// Invalidates lists keys marked stale after success. Family keys are
	// expanded against the keys present in the cache.
	Invalidates []cache.Key
	// InvalidatesFrom adds keys that depend on the result. Optional.
	InvalidatesFrom func(result interface{}) []cache.Key
	// OnConflict is told about each key whose committed value differs from
	// the optimistic one. Optional.
	OnConflict func(key cache.Key, optimistic, canonical interface{})
}

// Coordinator runs mutations against one cache.
type Coordinator struct {
	cache    *cache.EntityCache
	notifier notify.Notifier
	logger   *zap.Logger
	timeout  time.Duration
	onCommit func(keys []cache.Key)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithNotifier sets where success and failure toasts go.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithTimeout bounds every remote call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithInvalidationHook is called with the expanded keys after every
// successful invalidation.
func WithInvalidationHook(fn func(keys []cache.Key)) Option {
	return func(c *Coordinator) { c.onCommit = fn }
}

// NewCoordinator returns a coordinator writing to store.
func NewCoordinator(store *cache.EntityCache, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:    store,
		notifier: notify.Discard,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run applies m. On failure the cache is restored to its exact pre-patch
// state, nothing is invalidated, and the error is returned.
func (c *Coordinator) Run(ctx context.Context, m Mutation) (interface{}, error) {
	if m.Do == nil {
		return nil, fmt.Errorf("mutation %q has no remote call", m.Name)
	}

	var snap *cache.Snapshot
	optimistic := map[cache.Key]interface{}{}
	if m.Optimistic != nil {
		snap = c.cache.Patch(m.Optimistic)
		for _, key := range snap.Keys() {
			if e, ok := c.cache.Get(key); ok && e.HasData {
				optimistic[key] = e.Data
			}
		}
		c.logger.Debug("optimistic patch applied",
			zap.String("mutation", m.Name), zap.Int("keys", len(snap.Keys())))
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := m.Do(callCtx)
	if err != nil {
		c.cache.Restore(snap)
		c.logger.Debug("mutation rolled back", zap.String("mutation", m.Name), zap.Error(err))
		c.notifier.Notify(notify.Failure("Failed to "+m.Name, failureMessage(err)))
		return nil, err
	}

	if m.Commit != nil {
		committed := c.cache.Patch(func(tx *cache.Tx) { m.Commit(tx, result) })
		if m.OnConflict != nil {
			for _, key := range committed.Keys() {
				guess, had := optimistic[key]
				if !had {
					continue
				}
				canonical, _ := c.cache.Get(key)
				if !reflect.DeepEqual(guess, canonical.Data) {
					m.OnConflict(key, guess, canonical.Data)
				}
			}
		}
	}

	keys := append([]cache.Key(nil), m.Invalidates...)
	if m.InvalidatesFrom != nil {
		keys = append(keys, m.InvalidatesFrom(result)...)
	}
	expanded := cache.Expand(keys, c.cache.Keys())
	c.cache.Invalidate(expanded...)
	if c.onCommit != nil {
		c.onCommit(expanded)
	}
	c.logger.Debug("mutation committed",
		zap.String("mutation", m.Name), zap.Int("invalidated", len(expanded)))

	if m.Success != "" {
		c.notifier.Notify(notify.Success(m.Success, ""))
	}
	return result, nil
}

func failureMessage(err error) string {
	if d := apperr.Detail(err); d != "" {
		return d
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out."
	}
	return GenericFailure
}
