package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/keyword"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/storage"
)

func setup(t *testing.T) (*storage.SQLiteStorage, *keyword.BleveIndex) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := store.CreateNotebook(context.Background(), &models.Notebook{ID: "notebook:1", Name: "Research"}); err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	return store, idx
}

func TestProcess_TextSource(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	src := &models.Source{ID: "source:1", NotebookID: "notebook:1", Type: models.SourceText,
		Status: models.StatusPending, FullText: "Rivers of Europe\nthe Danube flows east"}
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(store, idx, WithChunking(3, 0), WithLogger(zap.NewNop()))
	if err := p.Process(ctx, src.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.GetSource(ctx, src.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.EmbeddedChunks != 3 {
		t.Errorf("EmbeddedChunks = %d, want 3", got.EmbeddedChunks)
	}
	if got.Title != "Rivers of Europe" {
		t.Errorf("Title = %q", got.Title)
	}
	hits, _ := idx.Search(ctx, "notebook:1", "danube", 10, nil)
	if len(hits) != 1 || hits[0].SourceID != src.ID {
		t.Errorf("hits = %+v", hits)
	}
}

func TestProcess_UploadMissingFileFails(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	src := &models.Source{ID: "source:2", NotebookID: "notebook:1", Type: models.SourceUpload,
		Title: "gone.pdf", Status: models.StatusPending,
		Metadata: map[string]interface{}{MetaFilePath: filepath.Join(t.TempDir(), "gone.pdf")}}
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatal(err)
	}
	if err := NewProcessor(store, idx).Process(ctx, src.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.GetSource(ctx, src.ID)
	if got.Status != models.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Metadata[MetaError] == nil {
		t.Error("expected error recorded in metadata")
	}
}

func TestProcess_SkipsFinished(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	src := &models.Source{ID: "source:3", NotebookID: "notebook:1", Type: models.SourceText,
		Title: "done", Status: models.StatusCompleted, FullText: "x", EmbeddedChunks: 7}
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatal(err)
	}
	if err := NewProcessor(store, idx).Process(ctx, src.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.GetSource(ctx, src.ID)
	if got.EmbeddedChunks != 7 {
		t.Errorf("finished source was reprocessed: %+v", got)
	}
}

func TestProcessor_Worker(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("# Notes\nlakes and rivers"), 0644); err != nil {
		t.Fatal(err)
	}
	src := &models.Source{ID: "source:4", NotebookID: "notebook:1", Type: models.SourceUpload,
		Title: "notes.md", Status: models.StatusPending, Metadata: map[string]interface{}{MetaFilePath: path}}
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(store, idx, WithQueueSize(1))
	p.Start(ctx)
	if err := p.Enqueue(src.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	p.Stop()
	if err := p.Enqueue(src.ID); err != ErrStopped {
		t.Errorf("Enqueue after Stop = %v, want ErrStopped", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := store.GetSource(ctx, src.ID)
		if got.Status == models.StatusCompleted {
			if got.Title != "notes.md" {
				t.Errorf("Title overwritten: %q", got.Title)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("source not completed, status %q", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   models.SourceInput
		want string
	}{
		{"explicit", models.SourceInput{Type: models.SourceText, Title: " Mine ", Content: "x"}, "Mine"},
		{"upload", models.SourceInput{Type: models.SourceUpload, FileName: "dir/report.pdf"}, "report.pdf"},
		{"link path", models.SourceInput{Type: models.SourceLink, URL: "https://example.com/docs/intro"}, "example.com/intro"},
		{"link host", models.SourceInput{Type: models.SourceLink, URL: "https://example.com/"}, "example.com"},
		{"text", models.SourceInput{Type: models.SourceText, Content: "\n first line \nsecond"}, "first line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.in); got != tt.want {
				t.Errorf("DeriveTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
