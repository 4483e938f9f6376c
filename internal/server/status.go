package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notebooks, err := s.storage.CountNotebooks(ctx)
	if err != nil {
		s.logger.Error("status: count notebooks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sources, err := s.storage.CountSources(ctx)
	if err != nil {
		s.logger.Error("status: count sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	indexed, err := s.index.DocCount()
	if err != nil {
		s.logger.Error("status: index doc count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"notebooks":       notebooks,
		"sources":         sources,
		"indexed_sources": indexed,
		"config": map[string]interface{}{
			"chunk_size":        s.config.Sources.ChunkSize,
			"chunk_overlap":     s.config.Sources.ChunkOverlap,
			"max_upload_bytes":  s.config.Sources.MaxUploadBytes,
			"database_path":     s.config.Storage.DatabasePath,
			"search_index_path": s.config.Storage.SearchIndexPath,
			"uploads_path":      s.config.Storage.UploadsPath,
		},
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.SearchIndexPath,
		s.config.Storage.UploadsPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}
