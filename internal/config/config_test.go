package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "http://notes.internal:5055"
  fetch_timeout: 5s
  mutation_timeout: 1m
cache:
  stale_time: 30s
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.API.BaseURL != "http://notes.internal:5055" {
		t.Errorf("base_url = %s", cfg.API.BaseURL)
	}
	if cfg.API.FetchTimeout != 5*time.Second || cfg.API.MutationTimeout != time.Minute {
		t.Errorf("timeouts = %v / %v", cfg.API.FetchTimeout, cfg.API.MutationTimeout)
	}
	if cfg.Cache.StaleTime != 30*time.Second {
		t.Errorf("stale_time = %v", cfg.Cache.StaleTime)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "api: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/notebooks.db"
  search_index_path: "./data/indices/sources"
watch:
  directories: ["./dev/sample"]
  notebook: "Inbox"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "notebooks.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if want := filepath.Join(dir, "data", "indices", "sources"); cfg.Storage.SearchIndexPath != want {
		t.Errorf("search_index_path = %s, want %s", cfg.Storage.SearchIndexPath, want)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	if want := filepath.Join(dir, "dev", "sample"); cfg.Watch.Directories[0] != want {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], want)
	}
	if cfg.Watch.Notebook != "Inbox" {
		t.Errorf("watch notebook = %q", cfg.Watch.Notebook)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 5055 {
		t.Errorf("default server: got %s", cfg.Server.Addr())
	}
	if cfg.API.BaseURL != "http://localhost:5055" {
		t.Errorf("default base_url: got %s", cfg.API.BaseURL)
	}
	if cfg.API.FetchTimeout != 30*time.Second || cfg.API.MutationTimeout != 30*time.Second {
		t.Errorf("default timeouts: %v / %v", cfg.API.FetchTimeout, cfg.API.MutationTimeout)
	}
	if cfg.Cache.StaleTime != 0 {
		t.Errorf("stale_time should default to 0, got %v", cfg.Cache.StaleTime)
	}
	if cfg.Sources.ChunkSize != 512 || cfg.Sources.ChunkOverlap != 50 {
		t.Errorf("chunking defaults: %+v", cfg.Sources)
	}
	if len(cfg.Watch.Extensions) != 6 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if cfg.Watch.Recursive != nil {
		t.Error("recursive should stay unset without directories")
	}
	if cfg.Watch.Notebook != "Inbox" || cfg.Watch.StatePath == "" {
		t.Errorf("watch target defaults: %q %q", cfg.Watch.Notebook, cfg.Watch.StatePath)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name string
		in   *bool
		want bool
	}{
		{"nil_returns_true", nil, true},
		{"true_returns_true", &yes, true},
		{"false_returns_false", &no, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &WatchConfig{Recursive: tt.in}
			if got := w.RecursiveOrDefault(); got != tt.want {
				t.Errorf("RecursiveOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		API:     APIConfig{FetchTimeout: 7 * time.Second},
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.API.FetchTimeout != 7*time.Second {
		t.Errorf("loaded fetch_timeout: got %v", loaded.API.FetchTimeout)
	}
}
