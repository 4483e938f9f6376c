package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/apperr"
)

// Payloads are decoded into wire structs with optional fields, then checked
// and converted into entities. Anything that fails is reported as a
// ServerError so malformed data never reaches the cache.

type wireNotebook struct {
	ID          *string           `json:"id"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Archived    *bool             `json:"archived"`
	Created     Timestamp         `json:"created"`
	Updated     Timestamp         `json:"updated"`
	Sources     []json.RawMessage `json:"sources"`
	Notes       []json.RawMessage `json:"notes"`
}

type wireSource struct {
	ID             *string                `json:"id"`
	NotebookID     string                 `json:"notebook_id"`
	Type           string                 `json:"type"`
	Title          string                 `json:"title"`
	Status         string                 `json:"status"`
	FullText       string                 `json:"full_text"`
	Metadata       map[string]interface{} `json:"metadata"`
	EmbeddedChunks int                    `json:"embedded_chunks"`
	Insights       []Insight              `json:"insights"`
	Created        Timestamp              `json:"created"`
	Updated        Timestamp              `json:"updated"`
}

type wireNote struct {
	ID         *string   `json:"id"`
	NotebookID string    `json:"notebook_id"`
	Title      *string   `json:"title"`
	Content    *string   `json:"content"`
	Type       string    `json:"note_type"`
	Created    Timestamp `json:"created"`
	Updated    Timestamp `json:"updated"`
}

type wireMessage struct {
	ID        *string   `json:"id"`
	Role      string    `json:"role"`
	Content   *string   `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

type wireSession struct {
	ID         *string       `json:"id"`
	NotebookID string        `json:"notebook_id"`
	Title      string        `json:"title"`
	Messages   []wireMessage `json:"messages"`
	Created    Timestamp     `json:"created_at"`
	Updated    Timestamp     `json:"updated_at"`
}

func unmarshal(entity string, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Malformed(http.StatusOK, entity, err.Error())
	}
	return nil
}

func required(entity, field string, v *string) (string, error) {
	if v == nil || *v == "" {
		return "", apperr.Malformed(http.StatusOK, entity, fmt.Sprintf("missing %s", field))
	}
	return *v, nil
}

// DecodeNotebook validates a single notebook payload.
func DecodeNotebook(data []byte) (Notebook, error) {
	var w wireNotebook
	if err := unmarshal("notebook", data, &w); err != nil {
		return Notebook{}, err
	}
	return w.toNotebook()
}

// DecodeNotebooks validates a notebook list payload.
func DecodeNotebooks(data []byte) ([]Notebook, error) {
	var ws []wireNotebook
	if err := unmarshal("notebook list", data, &ws); err != nil {
		return nil, err
	}
	out := make([]Notebook, 0, len(ws))
	for i := range ws {
		n, err := ws[i].toNotebook()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (w *wireNotebook) toNotebook() (Notebook, error) {
	id, err := required("notebook", "id", w.ID)
	if err != nil {
		return Notebook{}, err
	}
	name, err := required("notebook", "name", w.Name)
	if err != nil {
		return Notebook{}, err
	}
	n := Notebook{ID: id, Name: name, Created: w.Created, Updated: w.Updated}
	if w.Description != nil {
		n.Description = *w.Description
	}
	if w.Archived != nil {
		n.Archived = *w.Archived
	}
	for _, raw := range w.Sources {
		var s SourceSummary
		if err := decodeRef(raw, &s.ID, &s); err != nil {
			return Notebook{}, apperr.Malformed(http.StatusOK, "notebook", "bad source entry: "+err.Error())
		}
		n.Sources = append(n.Sources, s)
	}
	for _, raw := range w.Notes {
		var note NoteSummary
		if err := decodeRef(raw, &note.ID, &note); err != nil {
			return Notebook{}, apperr.Malformed(http.StatusOK, "notebook", "bad note entry: "+err.Error())
		}
		n.Notes = append(n.Notes, note)
	}
	return n, nil
}

// decodeRef accepts either a bare id string or an embedded object.
func decodeRef(raw json.RawMessage, id *string, obj interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		return json.Unmarshal(raw, id)
	}
	if err := json.Unmarshal(raw, obj); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("missing id")
	}
	return nil
}

// DecodeSource validates a single source payload. notebookID fills a missing owner.
func DecodeSource(data []byte, notebookID string) (Source, error) {
	var w wireSource
	if err := unmarshal("source", data, &w); err != nil {
		return Source{}, err
	}
	return w.toSource(notebookID)
}

// DecodeSources validates a source list payload. Both a bare array and the
// {"sources": [...]} envelope of the by-name endpoint are accepted.
func DecodeSources(data []byte, notebookID string) ([]Source, error) {
	trimmed := bytes.TrimSpace(data)
	var ws []wireSource
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Sources []wireSource `json:"sources"`
		}
		if err := unmarshal("source list", trimmed, &env); err != nil {
			return nil, err
		}
		ws = env.Sources
	} else if err := unmarshal("source list", trimmed, &ws); err != nil {
		return nil, err
	}
	out := make([]Source, 0, len(ws))
	for i := range ws {
		s, err := ws[i].toSource(notebookID)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (w *wireSource) toSource(notebookID string) (Source, error) {
	id, err := required("source", "id", w.ID)
	if err != nil {
		return Source{}, err
	}
	typ, ok := ParseSourceType(w.Type)
	if !ok {
		return Source{}, apperr.Malformed(http.StatusOK, "source", fmt.Sprintf("unknown type %q", w.Type))
	}
	status := StatusPending
	if w.Status != "" {
		status = SourceStatus(w.Status)
		if !status.Valid() {
			return Source{}, apperr.Malformed(http.StatusOK, "source", fmt.Sprintf("unknown status %q", w.Status))
		}
	}
	if w.EmbeddedChunks < 0 {
		return Source{}, apperr.Malformed(http.StatusOK, "source", "negative embedded_chunks")
	}
	owner := w.NotebookID
	if owner == "" {
		owner = notebookID
	}
	title := w.Title
	if title == "" {
		if t, ok := w.Metadata["title"].(string); ok && t != "" {
			title = t
		} else {
			title = "Untitled Source"
		}
	}
	return Source{
		ID:             id,
		NotebookID:     owner,
		Type:           typ,
		Title:          title,
		Status:         status,
		FullText:       w.FullText,
		Metadata:       w.Metadata,
		EmbeddedChunks: w.EmbeddedChunks,
		Insights:       w.Insights,
		Created:        w.Created,
		Updated:        w.Updated,
	}, nil
}

// DecodeNote validates a single note payload. notebookID fills a missing owner.
func DecodeNote(data []byte, notebookID string) (Note, error) {
	var w wireNote
	if err := unmarshal("note", data, &w); err != nil {
		return Note{}, err
	}
	return w.toNote(notebookID)
}

// DecodeNotes validates a note list payload. Both a bare array and the
// {"notes": [...]} envelope are accepted.
func DecodeNotes(data []byte, notebookID string) ([]Note, error) {
	trimmed := bytes.TrimSpace(data)
	var ws []wireNote
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Notes []wireNote `json:"notes"`
		}
		if err := unmarshal("note list", trimmed, &env); err != nil {
			return nil, err
		}
		ws = env.Notes
	} else if err := unmarshal("note list", trimmed, &ws); err != nil {
		return nil, err
	}
	out := make([]Note, 0, len(ws))
	for i := range ws {
		n, err := ws[i].toNote(notebookID)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (w *wireNote) toNote(notebookID string) (Note, error) {
	id, err := required("note", "id", w.ID)
	if err != nil {
		return Note{}, err
	}
	typ := NoteHuman
	if w.Type != "" {
		typ = NoteType(w.Type)
		if !typ.Valid() {
			return Note{}, apperr.Malformed(http.StatusOK, "note", fmt.Sprintf("unknown note_type %q", w.Type))
		}
	}
	n := Note{ID: id, NotebookID: w.NotebookID, Type: typ, Created: w.Created, Updated: w.Updated}
	if n.NotebookID == "" {
		n.NotebookID = notebookID
	}
	if w.Title != nil {
		n.Title = *w.Title
	}
	if n.Title == "" {
		n.Title = "Untitled Note"
	}
	if w.Content != nil {
		n.Content = *w.Content
	}
	return n, nil
}

func (w *wireMessage) toMessage() (ChatMessage, error) {
	id, err := required("chat message", "id", w.ID)
	if err != nil {
		return ChatMessage{}, err
	}
	if strings.HasPrefix(id, TempPrefix) {
		return ChatMessage{}, apperr.Malformed(http.StatusOK, "chat message", fmt.Sprintf("client-only id %q", id))
	}
	role := Role(w.Role)
	if role != RoleUser && role != RoleAssistant {
		return ChatMessage{}, apperr.Malformed(http.StatusOK, "chat message", fmt.Sprintf("unknown role %q", w.Role))
	}
	if w.Content == nil {
		return ChatMessage{}, apperr.Malformed(http.StatusOK, "chat message", "missing content")
	}
	return ChatMessage{ID: id, Role: role, Content: *w.Content, Timestamp: w.Timestamp}, nil
}

// DecodeChatReply validates the response of a send-message call.
func DecodeChatReply(data []byte) (ChatReply, error) {
	var w wireMessage
	if err := unmarshal("chat reply", data, &w); err != nil {
		return ChatReply{}, err
	}
	msg, err := w.toMessage()
	if err != nil {
		return ChatReply{}, err
	}
	if msg.Role != RoleAssistant {
		return ChatReply{}, apperr.Malformed(http.StatusOK, "chat reply", "reply is not an assistant message")
	}
	if w.SessionID == "" {
		return ChatReply{}, apperr.Malformed(http.StatusOK, "chat reply", "missing session_id")
	}
	return ChatReply{ChatMessage: msg, SessionID: w.SessionID}, nil
}

// DecodeChatSession validates a single session payload.
func DecodeChatSession(data []byte) (ChatSession, error) {
	var w wireSession
	if err := unmarshal("chat session", data, &w); err != nil {
		return ChatSession{}, err
	}
	return w.toSession("")
}

// DecodeChatSessions validates a session list payload for notebookID.
func DecodeChatSessions(data []byte, notebookID string) ([]ChatSession, error) {
	var ws []wireSession
	if err := unmarshal("chat session list", data, &ws); err != nil {
		return nil, err
	}
	out := make([]ChatSession, 0, len(ws))
	for i := range ws {
		s, err := ws[i].toSession(notebookID)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (w *wireSession) toSession(notebookID string) (ChatSession, error) {
	id, err := required("chat session", "id", w.ID)
	if err != nil {
		return ChatSession{}, err
	}
	s := ChatSession{ID: id, NotebookID: w.NotebookID, Title: w.Title, Created: w.Created, Updated: w.Updated}
	if s.NotebookID == "" {
		s.NotebookID = notebookID
	}
	s.Messages = make([]ChatMessage, 0, len(w.Messages))
	seen := make(map[string]struct{}, len(w.Messages))
	for i := range w.Messages {
		m, err := w.Messages[i].toMessage()
		if err != nil {
			return ChatSession{}, err
		}
		if _, dup := seen[m.ID]; dup {
			return ChatSession{}, apperr.Malformed(http.StatusOK, "chat session", fmt.Sprintf("duplicate message id %q", m.ID))
		}
		seen[m.ID] = struct{}{}
		s.Messages = append(s.Messages, m)
	}
	return s, nil
}
