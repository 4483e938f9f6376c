package cache

// Tx is a multi-key write applied while holding the cache lock, so readers
// never observe half of it. The first write to each key records the entry it
// replaces in the transaction's Snapshot.
type Tx struct {
	c      *EntityCache
	snap   *Snapshot
	events []Event
}

type priorEntry struct {
	entry   Entry
	present bool
	// after is the version the transaction left behind, 0 when it removed the key.
	after uint64
}

// Snapshot holds the pre-write state of every key a Tx touched.
type Snapshot struct {
	prior map[Key]priorEntry
	order []Key
}

// Keys returns the touched keys in the order they were first written.
func (s *Snapshot) Keys() []Key {
	if s == nil {
		return nil
	}
	return append([]Key(nil), s.order...)
}

// Prior returns the entry key held before the transaction, if it existed.
func (s *Snapshot) Prior(key Key) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	p, ok := s.prior[key]
	if !ok {
		return Entry{}, false
	}
	return p.entry, p.present
}

// Touched reports whether the transaction wrote key.
func (s *Snapshot) Touched(key Key) bool {
	if s == nil {
		return false
	}
	_, ok := s.prior[key]
	return ok
}

func (tx *Tx) record(key Key) {
	if _, ok := tx.snap.prior[key]; ok {
		return
	}
	e, present := tx.c.entries[key]
	tx.snap.prior[key] = priorEntry{entry: e, present: present}
	tx.snap.order = append(tx.snap.order, key)
}

// Get returns the current entry for key, including earlier writes in tx.
func (tx *Tx) Get(key Key) (Entry, bool) {
	e, ok := tx.c.entries[key]
	return e, ok
}

// Data returns the data of key when the entry holds any.
func (tx *Tx) Data(key Key) (interface{}, bool) {
	e, ok := tx.c.entries[key]
	if !ok || !e.HasData {
		return nil, false
	}
	return e.Data, true
}

// Set replaces the data of key.
func (tx *Tx) Set(key Key, data interface{}) {
	tx.record(key)
	tx.events = append(tx.events, tx.c.setLocked(key, data))
}

// Remove deletes key.
func (tx *Tx) Remove(key Key) {
	tx.record(key)
	if ev, ok := tx.c.removeLocked(key); ok {
		tx.events = append(tx.events, ev)
	}
}

// Keys returns every present key, for callers that patch a whole family.
func (tx *Tx) Keys() []Key {
	keys := make([]Key, 0, len(tx.c.entries))
	for k := range tx.c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Update replaces the T cached under key with fn's result. It does nothing
// and returns false when key holds no T.
func Update[T any](tx *Tx, key Key, fn func(T) T) bool {
	data, ok := tx.Data(key)
	if !ok {
		return false
	}
	v, ok := data.(T)
	if !ok {
		return false
	}
	tx.Set(key, fn(v))
	return true
}

// Patch runs fn as one atomic write and returns the snapshot needed to undo it.
func (c *EntityCache) Patch(fn func(tx *Tx)) *Snapshot {
	c.mu.Lock()
	tx := &Tx{c: c, snap: &Snapshot{prior: make(map[Key]priorEntry)}}
	fn(tx)
	for _, key := range tx.snap.order {
		p := tx.snap.prior[key]
		if e, ok := c.entries[key]; ok {
			p.after = e.Version
		}
		tx.snap.prior[key] = p
	}
	events := tx.events
	c.mu.Unlock()
	c.dispatch(events)
	return tx.snap
}

// Restore puts every key recorded in snap back to its pre-transaction entry,
// removing keys that did not exist. Keys nobody wrote since the transaction
// get entries identical to the recorded ones, version included.
//
// A key written after the transaction (a fetch settled, or the key was
// invalidated) gets the recorded data back but keeps its current fetch status,
// and is then invalidated: the recorded data predates that write, so
// observers revalidate it.
func (c *EntityCache) Restore(snap *Snapshot) {
	if snap == nil || len(snap.order) == 0 {
		return
	}
	c.mu.Lock()
	events := make([]Event, 0, len(snap.order))
	for _, key := range snap.order {
		p := snap.prior[key]
		cur, curOK := c.entries[key]
		moved := curOK && cur.Version != p.after
		if !p.present {
			if ev, ok := c.removeLocked(key); ok {
				events = append(events, ev)
			}
			continue
		}
		if !moved {
			c.entries[key] = p.entry
			events = append(events, Event{Key: key, Kind: EventRestored, Entry: p.entry, Present: true})
			continue
		}
		e := p.entry
		e.Status, e.Err = cur.Status, cur.Err
		c.seq++
		e.Version = c.seq
		c.entries[key] = e
		events = append(events, Event{Key: key, Kind: EventRestored, Entry: e, Present: true})

		c.seq++
		e.Stale = true
		e.Invalidations = cur.Invalidations + 1
		e.Version = c.seq
		c.entries[key] = e
		events = append(events, Event{Key: key, Kind: EventInvalidated, Entry: e, Present: true})
	}
	c.mu.Unlock()
	c.dispatch(events)
}
