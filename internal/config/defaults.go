package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5055
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://" + cfg.Server.Addr()
	}
	if cfg.API.FetchTimeout == 0 {
		cfg.API.FetchTimeout = 30 * time.Second
	}
	if cfg.API.MutationTimeout == 0 {
		cfg.API.MutationTimeout = 30 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/opennotebook/data/db/notebooks.db"
	}
	if cfg.Storage.SearchIndexPath == "" {
		cfg.Storage.SearchIndexPath = "/usr/local/var/opennotebook/data/indices/sources"
	}
	if cfg.Storage.UploadsPath == "" {
		cfg.Storage.UploadsPath = "/usr/local/var/opennotebook/data/uploads"
	}
	if cfg.Sources.ChunkSize == 0 {
		cfg.Sources.ChunkSize = 512
	}
	if cfg.Sources.ChunkOverlap == 0 {
		cfg.Sources.ChunkOverlap = 50
	}
	if cfg.Sources.MaxUploadBytes == 0 {
		cfg.Sources.MaxUploadBytes = 32 << 20
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Watch.Notebook == "" {
		cfg.Watch.Notebook = "Inbox"
	}
	if cfg.Watch.StatePath == "" {
		cfg.Watch.StatePath = "/usr/local/var/opennotebook/data/watch.yaml"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
