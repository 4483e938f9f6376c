package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/pkg/utils"
)

const sessionTitleLen = 40

func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// replyTo returns the assistant message answering the user message id, if any.
func replyTo(msgs []models.ChatMessage, id string) (models.ChatMessage, bool) {
	for i, m := range msgs {
		if m.ID == id && i+1 < len(msgs) && msgs[i+1].Role == models.RoleAssistant {
			return msgs[i+1], true
		}
	}
	return models.ChatMessage{}, false
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondErr(w, r, apperr.Invalid("message", "must not be empty"))
		return
	}
	n, err := s.storage.GetNotebook(ctx, r.URL.Query().Get("notebook_id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var session *models.ChatSession
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		if session, err = s.storage.GetChatSession(ctx, sid); err != nil {
			s.respondErr(w, r, err)
			return
		}
		if session.NotebookID != n.ID {
			s.respondError(w, http.StatusBadRequest, "session belongs to another notebook")
			return
		}
	} else {
		title := strings.TrimSpace(req.SessionName)
		if title == "" {
			title = utils.Truncate(utils.FirstLine(req.Message), sessionTitleLen)
		}
		session = &models.ChatSession{ID: newID("chat_session"), NotebookID: n.ID, Title: title}
		if err := s.storage.CreateChatSession(ctx, session); err != nil {
			s.respondErr(w, r, err)
			return
		}
	}

	// A retried send with a known message id gets the first reply.
	if req.MessageID != "" {
		if reply, ok := replyTo(session.Messages, req.MessageID); ok {
			s.respondJSON(w, http.StatusOK, models.ChatReply{ChatMessage: reply, SessionID: session.ID})
			return
		}
	}

	sources, err := s.storage.ListSources(ctx, n.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	content, err := s.responder.Reply(ctx, Prompt{Notebook: *n, Sources: sources, History: session.Messages, Message: req.Message})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	userID := req.MessageID
	if userID == "" {
		userID = newMessageID()
	}
	now := models.Now()
	user := models.ChatMessage{ID: userID, Role: models.RoleUser, Content: req.Message, Timestamp: now}
	reply := models.ChatMessage{ID: newMessageID(), Role: models.RoleAssistant, Content: content, Timestamp: now}
	if err := s.storage.AppendMessages(ctx, session.ID, user, reply); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("chat message answered",
		zap.String("session_id", session.ID),
		zap.String("message_id", userID))
	s.respondJSON(w, http.StatusOK, models.ChatReply{ChatMessage: reply, SessionID: session.ID})
}

func (s *Server) handleListChatSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.storage.ListChatSessions(r.Context(), param(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetChatSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.storage.GetChatSession(r.Context(), param(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteChatSession(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.DeleteChatSession(r.Context(), param(r, "id")); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondStatus(w, "Session deleted successfully")
}
