package fileid

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	k1 := Key("/foo/bar.txt")
	if k1 != Key("/foo/./bar.txt") {
		t.Error("equivalent paths should give the same key")
	}
	if k1 == Key("/foo/baz.txt") {
		t.Error("different paths should give different keys")
	}
	if k1[:len(prefix)] != prefix {
		t.Errorf("key should have prefix %q: got %q", prefix, k1)
	}
}

func TestRegistry_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "files.yaml")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Put(Entry{Path: "/w/a.txt", SourceID: "source:1", Size: 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(Entry{Path: "/w/b.txt", SourceID: "source:2"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if e, ok := r2.Get("/w/a.txt"); !ok || e.SourceID != "source:1" || e.Size != 3 {
		t.Errorf("Get = %+v, %v", e, ok)
	}

	e, ok, err := r2.Delete("/w/b.txt")
	if err != nil || !ok || e.SourceID != "source:2" {
		t.Errorf("Delete = %+v, %v, %v", e, ok, err)
	}
	if _, ok, _ := r2.Delete("/w/b.txt"); ok {
		t.Error("second Delete reported an entry")
	}
	r3, _ := Open(path)
	if r3.Len() != 1 {
		t.Errorf("Len after delete = %d, want 1", r3.Len())
	}
}

func TestRegistry_Unchanged(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(fp, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(fp)
	r, _ := Open("")
	if r.Unchanged(fp, info) {
		t.Error("unregistered file reported unchanged")
	}
	_ = r.Put(Entry{Path: fp, SourceID: "source:1", Size: info.Size(), ModTime: info.ModTime().UnixNano()})
	if !r.Unchanged(fp, info) {
		t.Error("registered file reported changed")
	}
	later := time.Now().Add(time.Hour)
	_ = os.Chtimes(fp, later, later)
	info, _ = os.Stat(fp)
	if r.Unchanged(fp, info) {
		t.Error("touched file reported unchanged")
	}
}

func TestOpen_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files.yaml")
	_ = os.WriteFile(path, []byte("{not: [valid"), 0644)
	if _, err := Open(path); err == nil {
		t.Error("expected parse error")
	}
}
