package cache

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestEntityCache_GetSet(t *testing.T) {
	c := New(WithClock(fixedClock()))
	if _, ok := c.Get(Notebooks()); ok {
		t.Fatal("expected miss")
	}
	c.Set(Notebooks(), []string{"a"})
	e, ok := c.Get(Notebooks())
	if !ok || !e.HasData {
		t.Fatalf("Get: got %+v, %v", e, ok)
	}
	if e.Status != StatusSuccess || e.Stale {
		t.Errorf("fresh entry: got status %s stale %v", e.Status, e.Stale)
	}
	v, ok := Value[[]string](c, Notebooks())
	if !ok || len(v) != 1 || v[0] != "a" {
		t.Errorf("Value: got %v, %v", v, ok)
	}
	if _, ok := Value[int](c, Notebooks()); ok {
		t.Error("Value with wrong type should miss")
	}
}

func TestEntityCache_InvalidateKeepsData(t *testing.T) {
	c := New()
	c.Set(Notebook("nb1"), "data")
	c.Invalidate(Notebook("nb1"))
	e, _ := c.Get(Notebook("nb1"))
	if !e.Stale {
		t.Error("expected stale after invalidate")
	}
	if e.Data != "data" {
		t.Errorf("data should remain visible, got %v", e.Data)
	}
	if e.Invalidations != 1 {
		t.Errorf("invalidations: got %d", e.Invalidations)
	}
	c.Set(Notebook("nb1"), "fresh")
	e, _ = c.Get(Notebook("nb1"))
	if e.Stale || e.Invalidations != 1 {
		t.Errorf("Set should clear stale and keep the invalidation count: %+v", e)
	}
}

func TestEntityCache_InvalidateIdempotent(t *testing.T) {
	once := New()
	twice := New()
	for _, c := range []*EntityCache{once, twice} {
		c.Set(Sources("nb"), []string{"s1", "s2"})
	}
	once.Invalidate(Sources("nb"))
	twice.Invalidate(Sources("nb"))
	twice.Invalidate(Sources("nb"))

	a, _ := once.Get(Sources("nb"))
	b, _ := twice.Get(Sources("nb"))
	if !reflect.DeepEqual(a.Data, b.Data) || a.Stale != b.Stale || a.HasData != b.HasData {
		t.Errorf("double invalidation changed the cached value: %+v vs %+v", a, b)
	}
}

func TestEntityCache_InvalidateAbsentIsIgnored(t *testing.T) {
	c := New()
	calls := 0
	unsub := c.Subscribe(Notebooks(), func(Event) { calls++ })
	defer unsub()
	c.Invalidate(Notebooks())
	if calls != 0 {
		t.Errorf("absent key should not notify, got %d calls", calls)
	}
	if c.Len() != 0 {
		t.Error("invalidate should not create entries")
	}
}

func TestEntityCache_SubscribeExactKeyOnly(t *testing.T) {
	c := New()
	var got []Event
	unsub := c.Subscribe(Sources("a"), func(ev Event) { got = append(got, ev) })

	c.Set(Sources("b"), 1)
	c.Set(Sources("a"), 2)
	c.Invalidate(Sources("a"), Sources("b"))
	c.Remove(Sources("a"))

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(got), got)
	}
	kinds := []EventKind{got[0].Kind, got[1].Kind, got[2].Kind}
	want := []EventKind{EventSet, EventInvalidated, EventRemoved}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("event kinds: got %v want %v", kinds, want)
	}
	if got[2].Present {
		t.Error("removed event should not be present")
	}

	unsub()
	unsub()
	c.Set(Sources("a"), 3)
	if len(got) != 3 {
		t.Error("unsubscribed listener was called")
	}
	if c.SubscriberCount(Sources("a")) != 0 {
		t.Error("subscriber count should be zero")
	}
}

func TestEntityCache_StatusKeepsData(t *testing.T) {
	c := New()
	c.SetLoading(Notebooks())
	e, ok := c.Get(Notebooks())
	if !ok || e.HasData || e.Status != StatusLoading {
		t.Fatalf("loading entry: %+v", e)
	}
	c.Set(Notebooks(), "v1")
	c.SetError(Notebooks(), errors.New("boom"))
	e, _ = c.Get(Notebooks())
	if e.Status != StatusError || e.Err == nil || e.Data != "v1" {
		t.Errorf("error entry should keep data: %+v", e)
	}
}

func TestEntityCache_PatchAndRestore(t *testing.T) {
	c := New(WithClock(fixedClock()))
	c.Set(Notebooks(), []string{"a", "b"})
	c.Set(Notebook("a"), "A")
	c.Invalidate(Notebook("a"))
	before := map[Key]Entry{}
	for _, k := range c.Keys() {
		before[k], _ = c.Get(k)
	}

	events := 0
	unsub := c.Subscribe(Notebooks(), func(Event) { events++ })
	defer unsub()

	snap := c.Patch(func(tx *Tx) {
		Update(tx, Notebooks(), func(list []string) []string { return list[:1] })
		tx.Remove(Notebook("a"))
		tx.Set(Notebook("new"), "N")
	})
	if events != 1 {
		t.Errorf("patch should notify once per touched key, got %d", events)
	}
	if got := snap.Keys(); len(got) != 3 {
		t.Errorf("snapshot keys: %v", got)
	}
	if _, ok := c.Get(Notebook("a")); ok {
		t.Error("patch should have removed notebook:a")
	}

	c.Restore(snap)
	after := map[Key]Entry{}
	for _, k := range c.Keys() {
		after[k], _ = c.Get(k)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("restore mismatch:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestEntityCache_RestoreAfterConcurrentWrite(t *testing.T) {
	c := New(WithClock(fixedClock()))
	key := Sources("nb")
	c.Set(key, []string{"a", "b"})
	c.Invalidate(key)
	c.SetLoading(key)

	snap := c.Patch(func(tx *Tx) { tx.Set(key, []string{"a"}) })
	// A fetch that started before the patch settles while the mutation runs.
	c.Set(key, []string{"a", "b", "c"})
	settled, _ := c.Get(key)

	var kinds []EventKind
	unsub := c.Subscribe(key, func(ev Event) { kinds = append(kinds, ev.Kind) })
	defer unsub()
	c.Restore(snap)

	e, _ := c.Get(key)
	if !reflect.DeepEqual(e.Data, []string{"a", "b"}) {
		t.Errorf("data = %v, want pre-mutation data", e.Data)
	}
	if e.Status != StatusSuccess {
		t.Errorf("status = %v, want success", e.Status)
	}
	if !e.Stale {
		t.Error("restored data should be stale")
	}
	if e.Invalidations <= settled.Invalidations {
		t.Errorf("invalidations = %d, want more than %d", e.Invalidations, settled.Invalidations)
	}
	want := []EventKind{EventRestored, EventInvalidated}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
}

func TestEntityCache_RestoreRemovesKeyCreatedAfterPatch(t *testing.T) {
	c := New()
	key := Source("s1")
	snap := c.Patch(func(tx *Tx) { tx.Set(key, "temp") })
	c.Set(key, "fetched")
	c.Restore(snap)
	if _, ok := c.Get(key); ok {
		t.Error("key absent before the patch should be removed")
	}
}

func TestUpdate_MissingOrWrongType(t *testing.T) {
	c := New()
	c.Set(Notebook("x"), 42)
	var applied []bool
	snap := c.Patch(func(tx *Tx) {
		applied = append(applied, Update(tx, Notebook("missing"), func(s string) string { return s }))
		applied = append(applied, Update(tx, Notebook("x"), func(s string) string { return s }))
	})
	if applied[0] || applied[1] {
		t.Errorf("Update should not apply: %v", applied)
	}
	if len(snap.Keys()) != 0 {
		t.Errorf("nothing should be recorded: %v", snap.Keys())
	}
}
