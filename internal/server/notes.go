package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/models"
)

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	n, err := s.resolveNotebook(r.Context(), r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	notes, err := s.storage.ListNotes(r.Context(), n.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if param(r, "name") != "" {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
		return
	}
	s.respondJSON(w, http.StatusOK, notes)
}

// handleCreateNote serves POST /notes?notebook_name= as well as the id and
// name routes under /notebooks.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in models.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		s.respondErr(w, r, err)
		return
	}

	var (
		nb  *models.Notebook
		err error
	)
	if name := r.URL.Query().Get("notebook_name"); name != "" {
		nb, err = s.storage.GetNotebookByName(ctx, models.NormalizeName(name))
	} else if param(r, "id") != "" || param(r, "name") != "" {
		nb, err = s.resolveNotebook(ctx, r)
	} else {
		s.respondError(w, http.StatusBadRequest, "notebook_name is required")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	note := &models.Note{
		ID:         newID("note"),
		NotebookID: nb.ID,
		Title:      in.Title,
		Content:    in.Content,
		Type:       in.Type,
	}
	if err := s.storage.CreateNote(ctx, note); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("note created", zap.String("id", note.ID), zap.String("notebook_id", nb.ID))
	s.respondJSON(w, http.StatusCreated, note)
}

// lookupNote finds the note addressed by either the id or the title path parameter.
func (s *Server) lookupNote(r *http.Request) (*models.Note, error) {
	if title := param(r, "title"); title != "" {
		return s.storage.GetNoteByTitle(r.Context(), title)
	}
	return s.storage.GetNote(r.Context(), param(r, "id"))
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.lookupNote(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var patch models.NotePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if err := patch.Validate(); err != nil {
		s.respondErr(w, r, err)
		return
	}
	note, err := s.lookupNote(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	updated := patch.Apply(*note)
	if err := s.storage.UpdateNote(r.Context(), &updated); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.lookupNote(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.storage.DeleteNote(r.Context(), note.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondStatus(w, "Note deleted successfully")
}
