package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/varunkrunch/opennotebook/internal/models"
)

func newMemIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	src := &models.Source{
		ID:         "source:1",
		NotebookID: "notebook:1",
		Title:      "Monthly Report May 2023",
		FullText:   "This report mentions Omnisyan and other findings. The Bayes app is also referenced.",
	}
	if err := idx.Index(ctx, src); err != nil {
		t.Fatalf("Index: %v", err)
	}

	for _, q := range []string{"Omnisyan", "bayes"} {
		hits, err := idx.Search(ctx, "notebook:1", q, 10, nil)
		if err != nil {
			t.Fatalf("Search %q: %v", q, err)
		}
		if len(hits) == 0 {
			t.Fatalf("expected a hit for %q", q)
		}
		if hits[0].SourceID != src.ID || hits[0].Title != src.Title {
			t.Errorf("hit = %+v", hits[0])
		}
		if hits[0].NotebookID != "notebook:1" {
			t.Errorf("NotebookID = %q", hits[0].NotebookID)
		}
	}
}

func TestBleveIndex_TitleBoost(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, &models.Source{ID: "source:1", NotebookID: "notebook:1", Title: "Notes", FullText: "a page about rivers and lakes"})
	_ = idx.Index(ctx, &models.Source{ID: "source:2", NotebookID: "notebook:1", Title: "Rivers", FullText: "a page about geography"})

	hits, err := idx.Search(ctx, "notebook:1", "rivers", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].SourceID != "source:2" {
		t.Errorf("first hit = %q, want title match source:2", hits[0].SourceID)
	}
}

func TestBleveIndex_ScopedToNotebook(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, &models.Source{ID: "source:1", NotebookID: "notebook:1", Title: "Alpha", FullText: "shared words"})
	_ = idx.Index(ctx, &models.Source{ID: "source:2", NotebookID: "notebook:2", Title: "Beta", FullText: "shared words"})

	hits, err := idx.Search(ctx, "notebook:2", "shared", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].SourceID != "source:2" {
		t.Errorf("hits = %+v, want only source:2", hits)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, &models.Source{ID: "source:1", NotebookID: "notebook:1", Title: "Budget", FullText: "quarterly forecast"})

	hits, _ := idx.Search(ctx, "notebook:1", "forcast", 10, nil)
	if len(hits) != 0 {
		t.Errorf("exact search matched a typo: %+v", hits)
	}
	hits, err := idx.Search(ctx, "notebook:1", "forcast", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("fuzzy hits = %d, want 1", len(hits))
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx := newMemIndex(t)
	hits, err := idx.Search(context.Background(), "notebook:1", "   ", 10, nil)
	if err != nil || hits != nil {
		t.Errorf("Search(blank) = %v, %v", hits, err)
	}
}

func TestBleveIndex_DeleteAndDeleteNotebook(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, &models.Source{ID: "source:1", NotebookID: "notebook:1", Title: "One", FullText: "delete me"})
	_ = idx.Index(ctx, &models.Source{ID: "source:2", NotebookID: "notebook:1", Title: "Two", FullText: "delete me"})
	_ = idx.Index(ctx, &models.Source{ID: "source:3", NotebookID: "notebook:2", Title: "Three", FullText: "delete me"})

	if err := idx.Delete(ctx, "source:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := idx.DocCount(); n != 2 {
		t.Errorf("DocCount = %d, want 2", n)
	}
	if err := idx.DeleteNotebook(ctx, "notebook:1"); err != nil {
		t.Fatalf("DeleteNotebook: %v", err)
	}
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	hits, _ := idx.Search(ctx, "notebook:2", "delete", 10, nil)
	if len(hits) != 1 {
		t.Errorf("other notebook lost its source: %+v", hits)
	}
}

func TestBleveIndex_OpenExisting(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "bleve")
	ctx := context.Background()

	idx, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	_ = idx.Index(ctx, &models.Source{ID: "source:1", NotebookID: "notebook:1", Title: "Persisted", FullText: "durable"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("index dir missing: %v", err)
	}

	idx, err = NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = idx.Close() }()
	hits, _ := idx.Search(ctx, "notebook:1", "durable", 10, nil)
	if len(hits) != 1 {
		t.Errorf("hits after reopen = %d, want 1", len(hits))
	}
}
