package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/ingest"
	"github.com/varunkrunch/opennotebook/internal/models"
)

// withContents fills the embedded source and note summaries of n.
func (s *Server) withContents(ctx context.Context, n *models.Notebook) error {
	sources, err := s.storage.ListSources(ctx, n.ID)
	if err != nil {
		return err
	}
	n.Sources = make([]models.SourceSummary, 0, len(sources))
	for _, src := range sources {
		n.Sources = append(n.Sources, src.Summary())
	}
	notes, err := s.storage.ListNotes(ctx, n.ID)
	if err != nil {
		return err
	}
	n.Notes = make([]models.NoteSummary, 0, len(notes))
	for _, note := range notes {
		n.Notes = append(n.Notes, note.Summary())
	}
	return nil
}

func (s *Server) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	notebooks, err := s.storage.ListNotebooks(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	for i := range notebooks {
		if err := s.withContents(r.Context(), &notebooks[i]); err != nil {
			s.respondErr(w, r, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, notebooks)
}

func (s *Server) handleCreateNotebook(w http.ResponseWriter, r *http.Request) {
	var in models.NotebookInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := models.NormalizeName(in.Name)
	if name == "" {
		s.respondErr(w, r, apperr.Invalid("name", "must not be empty"))
		return
	}
	n := &models.Notebook{ID: newID("notebook"), Name: name, Description: in.Description}
	if err := s.storage.CreateNotebook(r.Context(), n); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("notebook created", zap.String("id", n.ID), zap.String("name", n.Name))
	s.respondJSON(w, http.StatusCreated, n)
}

func (s *Server) respondNotebook(w http.ResponseWriter, r *http.Request, n *models.Notebook, err error) {
	if err == nil {
		err = s.withContents(r.Context(), n)
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, n)
}

func (s *Server) handleGetNotebook(w http.ResponseWriter, r *http.Request) {
	n, err := s.storage.GetNotebook(r.Context(), param(r, "id"))
	s.respondNotebook(w, r, n, err)
}

func (s *Server) handleGetNotebookByName(w http.ResponseWriter, r *http.Request) {
	n, err := s.storage.GetNotebookByName(r.Context(), models.NormalizeName(param(r, "name")))
	s.respondNotebook(w, r, n, err)
}

func (s *Server) handleUpdateNotebook(w http.ResponseWriter, r *http.Request) {
	var patch models.NotebookPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Name != nil {
		name := models.NormalizeName(*patch.Name)
		if name == "" {
			s.respondErr(w, r, apperr.Invalid("name", "must not be empty"))
			return
		}
		patch.Name = &name
	}
	n, err := s.storage.GetNotebook(r.Context(), param(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	updated := patch.Apply(*n)
	err = s.storage.UpdateNotebook(r.Context(), &updated)
	s.respondNotebook(w, r, &updated, err)
}

func (s *Server) handleArchive(archived bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.storage.GetNotebook(r.Context(), param(r, "id"))
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		n.Archived = archived
		err = s.storage.UpdateNotebook(r.Context(), n)
		s.respondNotebook(w, r, n, err)
	}
}

func (s *Server) handleDeleteNotebook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := param(r, "id")
	sources, err := s.storage.ListSources(ctx, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.storage.DeleteNotebook(ctx, id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.index.DeleteNotebook(ctx, id); err != nil {
		s.logger.Warn("failed to drop notebook from search index", zap.String("id", id), zap.Error(err))
	}
	for i := range sources {
		removeUpload(&sources[i])
	}
	s.respondStatus(w, "Notebook deleted")
}

func removeUpload(src *models.Source) {
	if fp, _ := src.Metadata[ingest.MetaFilePath].(string); fp != "" {
		_ = os.Remove(fp)
	}
}
