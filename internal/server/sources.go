package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/ingest"
	"github.com/varunkrunch/opennotebook/internal/keyword"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/storage"
)

const defaultSearchLimit = 10

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	n, err := s.storage.GetNotebook(r.Context(), param(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	sources, err := s.storage.ListSources(r.Context(), n.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sources)
}

// handleListSourcesByName wraps the list in an envelope with processing logs.
func (s *Server) handleListSourcesByName(w http.ResponseWriter, r *http.Request) {
	n, err := s.storage.GetNotebookByName(r.Context(), models.NormalizeName(param(r, "name")))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	sources, err := s.storage.ListSources(r.Context(), n.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"logs":    []string{},
	})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.storage.GetSource(r.Context(), param(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, src)
}

// resolveNotebook finds the notebook addressed by either the id or the name path parameter.
func (s *Server) resolveNotebook(ctx context.Context, r *http.Request) (*models.Notebook, error) {
	if name := param(r, "name"); name != "" {
		return s.storage.GetNotebookByName(ctx, models.NormalizeName(name))
	}
	return s.storage.GetNotebook(ctx, param(r, "id"))
}

// parseSourceForm reads the multipart create-source form.
func parseSourceForm(r *http.Request, maxBytes int64) (models.SourceInput, error) {
	var in models.SourceInput
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return in, apperr.Invalid("", "invalid multipart form: "+err.Error())
	}
	typ, ok := models.ParseSourceType(r.FormValue("type"))
	if !ok {
		return in, apperr.Invalid("type", "must be one of text, link, upload")
	}
	in.Type = typ
	in.Title = r.FormValue("title")
	in.Content = r.FormValue("content")
	in.URL = r.FormValue("url")
	if t := r.FormValue("apply_transformations"); t != "" {
		for _, name := range strings.Split(t, ",") {
			if name = strings.TrimSpace(name); name != "" {
				in.ApplyTransformations = append(in.ApplyTransformations, name)
			}
		}
	}
	if e := r.FormValue("embed"); e != "" {
		embed, err := strconv.ParseBool(e)
		if err != nil {
			return in, apperr.Invalid("embed", "must be a boolean")
		}
		in.Embed = embed
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, in.Validate()
	}
	if err != nil {
		return in, apperr.Invalid("file", err.Error())
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return in, apperr.Invalid("file", err.Error())
	}
	in.FileName = header.Filename
	in.File = data
	return in, in.Validate()
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxBytes := s.config.Sources.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

	in, err := parseSourceForm(r, maxBytes)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	n, err := s.resolveNotebook(ctx, r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	src := &models.Source{
		ID:         newID("source"),
		NotebookID: n.ID,
		Type:       in.Type,
		Title:      ingest.DeriveTitle(in),
		Status:     models.StatusPending,
		Metadata:   map[string]interface{}{"embed": in.Embed},
	}
	if len(in.ApplyTransformations) > 0 {
		src.Metadata["apply_transformations"] = in.ApplyTransformations
	}
	switch in.Type {
	case models.SourceText:
		src.FullText = in.Content
	case models.SourceLink:
		src.FullText = strings.TrimSpace(in.URL)
		src.Metadata["url"] = src.FullText
	case models.SourceUpload:
		path, err := storage.SaveUpload(s.config.Storage.UploadsPath, in.FileName, in.File)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		src.Metadata[ingest.MetaFilePath] = path
	}

	if err := s.storage.CreateSource(ctx, src); err != nil {
		removeUpload(src)
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("source created",
		zap.String("id", src.ID),
		zap.String("notebook_id", n.ID),
		zap.String("type", string(src.Type)))
	if s.processor != nil {
		if err := s.processor.Enqueue(src.ID); err != nil {
			s.logger.Warn("source not queued for processing", zap.String("id", src.ID), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusCreated, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := param(r, "id")
	src, err := s.storage.GetSource(ctx, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.storage.DeleteSource(ctx, id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to drop source from search index", zap.String("id", id), zap.Error(err))
	}
	removeUpload(src)
	s.respondStatus(w, "Source deleted successfully")
}

func (s *Server) handleSearchSources(w http.ResponseWriter, r *http.Request) {
	id := param(r, "id")
	if _, err := s.storage.GetNotebook(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	limit := defaultSearchLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	fuzzy, _ := strconv.ParseBool(r.URL.Query().Get("fuzzy"))
	hits, err := s.index.Search(r.Context(), id, r.URL.Query().Get("q"), limit, &keyword.SearchOptions{FuzzyEnabled: fuzzy})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if hits == nil {
		hits = []models.SourceHit{}
	}
	s.respondJSON(w, http.StatusOK, hits)
}
