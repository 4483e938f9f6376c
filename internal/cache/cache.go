// Package cache provides the in-memory entity cache shared by the fetch and
// mutation coordinators. Data stored in the cache is treated as immutable:
// writers replace values, they never modify them in place.
package cache

import (
	"sort"
	"sync"
	"time"
)

// FetchStatus is the state of the most recent fetch of a key.
type FetchStatus string

const (
	StatusIdle    FetchStatus = "idle"
	StatusLoading FetchStatus = "loading"
	StatusSuccess FetchStatus = "success"
	StatusError   FetchStatus = "error"
)

// Entry is the cached state of one key.
type Entry struct {
	Data      interface{}
	HasData   bool
	Status    FetchStatus
	Err       error
	UpdatedAt time.Time
	// Stale is set by Invalidate and cleared by the next Set.
	Stale         bool
	Invalidations uint64
	Version       uint64
}

// EventKind says what changed in an entry.
type EventKind int

const (
	EventSet EventKind = iota
	EventInvalidated
	EventStatus
	EventRemoved
	EventRestored
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventInvalidated:
		return "invalidated"
	case EventStatus:
		return "status"
	case EventRemoved:
		return "removed"
	case EventRestored:
		return "restored"
	}
	return "unknown"
}

// Event is delivered to the subscribers of Key. Present is false when the
// entry no longer exists.
type Event struct {
	Key     Key
	Kind    EventKind
	Entry   Entry
	Present bool
}

// Listener receives events for one key.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// EntityCache maps keys to entries and notifies per-key subscribers. Events
// are delivered synchronously after the write, outside the cache lock, and
// only to subscribers of the exact key that changed.
type EntityCache struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	subs    map[Key][]subscription
	nextSub uint64
	seq     uint64
	now     func() time.Time
}

// Option configures an EntityCache.
type Option func(*EntityCache)

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *EntityCache) { c.now = now }
}

// New returns an empty cache.
func New(opts ...Option) *EntityCache {
	c := &EntityCache{
		entries: make(map[Key]Entry),
		subs:    make(map[Key][]subscription),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key.
func (c *EntityCache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Value returns the data cached under key when it holds a T.
func Value[T any](c *EntityCache, key Key) (T, bool) {
	var zero T
	e, ok := c.Get(key)
	if !ok || !e.HasData {
		return zero, false
	}
	v, ok := e.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores data as the fresh, successful value of key.
func (c *EntityCache) Set(key Key, data interface{}) {
	c.mu.Lock()
	ev := c.setLocked(key, data)
	c.mu.Unlock()
	c.dispatch([]Event{ev})
}

func (c *EntityCache) setLocked(key Key, data interface{}) Event {
	prev := c.entries[key]
	c.seq++
	e := Entry{
		Data:          data,
		HasData:       true,
		Status:        StatusSuccess,
		UpdatedAt:     c.now(),
		Invalidations: prev.Invalidations,
		Version:       c.seq,
	}
	c.entries[key] = e
	return Event{Key: key, Kind: EventSet, Entry: e, Present: true}
}

func (c *EntityCache) removeLocked(key Key) (Event, bool) {
	if _, ok := c.entries[key]; !ok {
		return Event{}, false
	}
	delete(c.entries, key)
	return Event{Key: key, Kind: EventRemoved}, true
}

// SetLoading marks key as loading, creating an empty entry when absent.
// Prior data is kept.
func (c *EntityCache) SetLoading(key Key) {
	c.setStatus(key, StatusLoading, nil)
}

// SetError records a failed fetch. Prior data is kept.
func (c *EntityCache) SetError(key Key, err error) {
	c.setStatus(key, StatusError, err)
}

func (c *EntityCache) setStatus(key Key, status FetchStatus, err error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = Entry{Status: StatusIdle}
	}
	c.seq++
	e.Status = status
	e.Err = err
	e.Version = c.seq
	c.entries[key] = e
	c.mu.Unlock()
	c.dispatch([]Event{{Key: key, Kind: EventStatus, Entry: e, Present: true}})
}

// Invalidate marks every present key as stale. Data stays visible until the
// next successful fetch replaces it; absent keys are ignored.
func (c *EntityCache) Invalidate(keys ...Key) {
	c.mu.Lock()
	events := make([]Event, 0, len(keys))
	for _, key := range keys {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		c.seq++
		e.Stale = true
		e.Invalidations++
		e.Version = c.seq
		c.entries[key] = e
		events = append(events, Event{Key: key, Kind: EventInvalidated, Entry: e, Present: true})
	}
	c.mu.Unlock()
	c.dispatch(events)
}

// Remove deletes key.
func (c *EntityCache) Remove(key Key) {
	c.mu.Lock()
	ev, ok := c.removeLocked(key)
	c.mu.Unlock()
	if ok {
		c.dispatch([]Event{ev})
	}
}

// Keys returns every present key in sorted order.
func (c *EntityCache) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of present keys.
func (c *EntityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Subscribe registers fn for events on key. The returned function removes it
// and is safe to call more than once.
func (c *EntityCache) Subscribe(key Key, fn Listener) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[key] = append(c.subs[key], subscription{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			list := c.subs[key]
			for i, s := range list {
				if s.id == id {
					c.subs[key] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(c.subs[key]) == 0 {
				delete(c.subs, key)
			}
		})
	}
}

// SubscriberCount returns the number of listeners on key.
func (c *EntityCache) SubscriberCount(key Key) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[key])
}

// Reset drops every entry and subscription.
func (c *EntityCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]Entry)
	c.subs = make(map[Key][]subscription)
	c.mu.Unlock()
}

func (c *EntityCache) dispatch(events []Event) {
	for _, ev := range events {
		c.mu.RLock()
		list := append([]subscription(nil), c.subs[ev.Key]...)
		c.mu.RUnlock()
		for _, s := range list {
			s.fn(ev)
		}
	}
}
