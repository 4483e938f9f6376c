package mutation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/notify"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func snapshotAll(c *cache.EntityCache) map[cache.Key]cache.Entry {
	out := map[cache.Key]cache.Entry{}
	for _, k := range c.Keys() {
		e, _ := c.Get(k)
		out[k] = e
	}
	return out
}

func TestRunFailureRestoresCacheExactly(t *testing.T) {
	store := cache.New(cache.WithClock(fixedClock()))
	store.Set(cache.Notebooks(), []string{"a", "b"})
	store.Set(cache.Notebook("a"), "notebook a")
	store.Invalidate(cache.Notebook("a"))
	before := snapshotAll(store)

	rec := &notify.Recorder{}
	c := NewCoordinator(store, WithNotifier(rec))

	var during []string
	_, err := c.Run(context.Background(), Mutation{
		Name:    "delete notebook",
		Success: "Notebook deleted",
		Optimistic: func(tx *cache.Tx) {
			cache.Update(tx, cache.Notebooks(), func(list []string) []string { return list[1:] })
			tx.Remove(cache.Notebook("a"))
			tx.Set(cache.Notebook("tmp"), "placeholder")
		},
		Do: func(ctx context.Context) (interface{}, error) {
			during, _ = cache.Value[[]string](store, cache.Notebooks())
			return nil, &apperr.ServerError{Status: 404, Detail: "Notebook not found"}
		},
		Invalidates: []cache.Key{cache.Notebooks()},
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if !reflect.DeepEqual(during, []string{"b"}) {
		t.Errorf("optimistic list = %v, want [b]", during)
	}
	if after := snapshotAll(store); !reflect.DeepEqual(before, after) {
		t.Errorf("cache not restored:\nbefore %+v\nafter  %+v", before, after)
	}

	toasts := rec.Toasts()
	if len(toasts) != 1 {
		t.Fatalf("toasts = %d, want 1", len(toasts))
	}
	if toasts[0].Level != notify.LevelError || toasts[0].Message != "Notebook not found" {
		t.Errorf("toast = %+v", toasts[0])
	}
}

func TestRunFailureWithoutDetailUsesGenericMessage(t *testing.T) {
	rec := &notify.Recorder{}
	c := NewCoordinator(cache.New(), WithNotifier(rec))
	_, err := c.Run(context.Background(), Mutation{
		Name: "archive notebook",
		Do: func(ctx context.Context) (interface{}, error) {
			return nil, &apperr.TransportError{Op: "archive", Err: errors.New("connection refused")}
		},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	last, _ := rec.Last()
	if last.Message != GenericFailure {
		t.Errorf("message = %q", last.Message)
	}
}

func TestRunSuccessCommitsAndInvalidates(t *testing.T) {
	store := cache.New()
	store.Set(cache.Notebook("a"), "guess")
	store.Set(cache.Sources("a"), []string{"s1"})
	store.Set(cache.Sources("b"), []string{"s2"})
	store.Set(cache.Notebooks(), []string{"a"})

	rec := &notify.Recorder{}
	var hooked []cache.Key
	c := NewCoordinator(store, WithNotifier(rec), WithInvalidationHook(func(keys []cache.Key) { hooked = keys }))

	var conflicts []cache.Key
	result, err := c.Run(context.Background(), Mutation{
		Name:       "rename notebook",
		Success:    "Notebook renamed",
		Optimistic: func(tx *cache.Tx) { tx.Set(cache.Notebook("a"), "optimistic") },
		Do: func(ctx context.Context) (interface{}, error) {
			return "canonical", nil
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			tx.Set(cache.Notebook("a"), result)
		},
		Invalidates: []cache.Key{cache.Family(cache.KindSources)},
		InvalidatesFrom: func(result interface{}) []cache.Key {
			return []cache.Key{cache.Notebooks()}
		},
		OnConflict: func(key cache.Key, optimistic, canonical interface{}) {
			conflicts = append(conflicts, key)
			if optimistic != "optimistic" || canonical != "canonical" {
				t.Errorf("conflict values = %v, %v", optimistic, canonical)
			}
		},
	})
	if err != nil || result != "canonical" {
		t.Fatalf("Run = %v, %v", result, err)
	}

	e, _ := store.Get(cache.Notebook("a"))
	if e.Data != "canonical" || e.Stale {
		t.Errorf("notebook entry = %+v", e)
	}
	if !reflect.DeepEqual(conflicts, []cache.Key{cache.Notebook("a")}) {
		t.Errorf("conflicts = %v", conflicts)
	}
	for _, k := range []cache.Key{cache.Sources("a"), cache.Sources("b"), cache.Notebooks()} {
		if e, _ := store.Get(k); !e.Stale {
			t.Errorf("%s not invalidated", k)
		}
	}
	if len(hooked) != 3 {
		t.Errorf("hook keys = %v", hooked)
	}
	if last, _ := rec.Last(); last.Level != notify.LevelSuccess || last.Title != "Notebook renamed" {
		t.Errorf("toast = %+v", last)
	}
}

func TestRunTimeout(t *testing.T) {
	rec := &notify.Recorder{}
	c := NewCoordinator(cache.New(), WithNotifier(rec), WithTimeout(10*time.Millisecond))
	_, err := c.Run(context.Background(), Mutation{
		Name: "create notebook",
		Do: func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if last, _ := rec.Last(); last.Message != "The request timed out." {
		t.Errorf("message = %q", last.Message)
	}
}

func TestHandleRejectsWhilePending(t *testing.T) {
	c := NewCoordinator(cache.New())
	h := NewHandle(c)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := h.Run(context.Background(), Mutation{
			Name: "send message",
			Do: func(ctx context.Context) (interface{}, error) {
				close(started)
				<-release
				return "ok", nil
			},
		})
		done <- err
	}()
	<-started

	if !h.Pending() {
		t.Error("Pending() = false during run")
	}
	calls := 0
	_, err := h.Run(context.Background(), Mutation{
		Name: "send message",
		Do: func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, nil
		},
	})
	if !errors.Is(err, ErrPending) {
		t.Errorf("second Run err = %v, want ErrPending", err)
	}
	if calls != 0 {
		t.Error("second remote call was dispatched")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if h.Pending() {
		t.Error("Pending() = true after completion")
	}
	if h.Err() != nil {
		t.Errorf("Err() = %v", h.Err())
	}
}
