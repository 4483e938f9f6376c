// Package fileid tracks which source each watched file was uploaded as.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const prefix = "file:"

// Key returns a stable key for the given absolute path.
// Same path always yields the same key.
func Key(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// Entry records the source a file was uploaded as.
type Entry struct {
	Path     string `yaml:"path"`
	SourceID string `yaml:"source_id"`
	Size     int64  `yaml:"size"`
	ModTime  int64  `yaml:"mod_time"`
}

// Registry maps watched file paths to source ids. When created with a path
// it is persisted as YAML after every change.
type Registry struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// Open loads the registry at path. A missing file yields an empty registry;
// an empty path keeps the registry in memory only.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, entries: make(map[string]Entry)}
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file registry: %w", err)
	}
	var list []Entry
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse file registry: %w", err)
	}
	for _, e := range list {
		r.entries[Key(e.Path)] = e
	}
	return r, nil
}

// Get returns the entry for path.
func (r *Registry) Get(path string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[Key(path)]
	return e, ok
}

// Unchanged reports whether path is registered with the given size and mtime.
func (r *Registry) Unchanged(path string, info os.FileInfo) bool {
	e, ok := r.Get(path)
	return ok && e.Size == info.Size() && e.ModTime == info.ModTime().UnixNano()
}

// Put records e, replacing any entry for the same path.
func (r *Registry) Put(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Path = filepath.Clean(e.Path)
	r.entries[Key(e.Path)] = e
	return r.saveLocked()
}

// Delete forgets path and returns the entry it had.
func (r *Registry) Delete(path string) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key(path)
	e, ok := r.entries[k]
	if !ok {
		return Entry{}, false, nil
	}
	delete(r.entries, k)
	return e, true, r.saveLocked()
}

// Len returns the number of registered files.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	list := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e)
	}
	data, err := yaml.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal file registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}
