package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/pkg/utils"
)

const maxDetailLen = 300

// Client implements Remote over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for request debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client for the API served at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Remote = (*Client)(nil)

func seg(s string) string { return url.PathEscape(s) }

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	op := method + " " + path
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &apperr.TransportError{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	c.logger.Debug("api request",
		zap.String("op", op), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.ServerError{Status: resp.StatusCode, Detail: parseDetail(data)}
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in interface{}) ([]byte, error) {
	if in == nil {
		return c.do(ctx, method, path, nil, "")
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(body), "application/json")
}

// parseDetail extracts the reason from a FastAPI style error body:
// {"detail": "..."} or {"detail": [{"msg": "..."}]}. Other bodies are
// returned as trimmed text.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var s string
		if json.Unmarshal(envelope.Detail, &s) == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(envelope.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return utils.Truncate(strings.TrimSpace(string(body)), maxDetailLen)
}

// ListNotebooks returns every notebook, archived ones included.
func (c *Client) ListNotebooks(ctx context.Context) ([]models.Notebook, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks", nil, "")
	if err != nil {
		return nil, err
	}
	return models.DecodeNotebooks(data)
}

// GetNotebook returns the notebook with id.
func (c *Client) GetNotebook(ctx context.Context, id string) (models.Notebook, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks/"+seg(id), nil, "")
	if err != nil {
		return models.Notebook{}, err
	}
	return models.DecodeNotebook(data)
}

// GetNotebookByName returns the notebook routed by name.
func (c *Client) GetNotebookByName(ctx context.Context, name string) (models.Notebook, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks/by-name/"+seg(name), nil, "")
	if err != nil {
		return models.Notebook{}, err
	}
	return models.DecodeNotebook(data)
}

// CreateNotebook creates a notebook. A taken name is answered with 409.
func (c *Client) CreateNotebook(ctx context.Context, in models.NotebookInput) (models.Notebook, error) {
	data, err := c.doJSON(ctx, http.MethodPost, "/api/v1/notebooks", in)
	if err != nil {
		return models.Notebook{}, err
	}
	return models.DecodeNotebook(data)
}

// UpdateNotebook applies patch to the notebook with id and returns the result.
func (c *Client) UpdateNotebook(ctx context.Context, id string, patch models.NotebookPatch) (models.Notebook, error) {
	data, err := c.doJSON(ctx, http.MethodPatch, "/api/v1/notebooks/"+seg(id), patch)
	if err != nil {
		return models.Notebook{}, err
	}
	return models.DecodeNotebook(data)
}

// DeleteNotebook removes the notebook with id along with its contents.
func (c *Client) DeleteNotebook(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/notebooks/"+seg(id), nil, "")
	return err
}

// ArchiveNotebook marks the notebook with id archived.
func (c *Client) ArchiveNotebook(ctx context.Context, id string) (models.Notebook, error) {
	return c.archive(ctx, id, "archive")
}

// UnarchiveNotebook clears the archived flag of the notebook with id.
func (c *Client) UnarchiveNotebook(ctx context.Context, id string) (models.Notebook, error) {
	return c.archive(ctx, id, "unarchive")
}

func (c *Client) archive(ctx context.Context, id, action string) (models.Notebook, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/v1/notebooks/"+seg(id)+"/"+action, nil, "")
	if err != nil {
		return models.Notebook{}, err
	}
	return models.DecodeNotebook(data)
}

// ListSources returns the sources of the notebook with notebookID.
func (c *Client) ListSources(ctx context.Context, notebookID string) ([]models.Source, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks/"+seg(notebookID)+"/sources", nil, "")
	if err != nil {
		return nil, err
	}
	return models.DecodeSources(data, notebookID)
}

// ListSourcesByName returns the sources of the notebook routed by notebookName.
func (c *Client) ListSourcesByName(ctx context.Context, notebookName string) ([]models.Source, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks/by-name/"+seg(notebookName)+"/sources", nil, "")
	if err != nil {
		return nil, err
	}
	return models.DecodeSources(data, "")
}

// GetSource returns the source with id, full text included.
func (c *Client) GetSource(ctx context.Context, id string) (models.Source, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/sources/"+seg(id), nil, "")
	if err != nil {
		return models.Source{}, err
	}
	return models.DecodeSource(data, "")
}

// CreateSource posts in as a multipart form to the id or name route of ref.
func (c *Client) CreateSource(ctx context.Context, ref models.NotebookRef, in models.SourceInput) (models.Source, error) {
	if err := in.Validate(); err != nil {
		return models.Source{}, err
	}
	path := "/api/v1/notebooks/" + seg(ref.ID) + "/sources"
	if ref.ID == "" {
		path = "/api/v1/notebooks/by-name/" + seg(ref.Name) + "/sources"
	}

	body, contentType, err := encodeSourceForm(in)
	if err != nil {
		return models.Source{}, err
	}
	data, err := c.do(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return models.Source{}, err
	}
	return models.DecodeSource(data, ref.ID)
}

func encodeSourceForm(in models.SourceInput) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"type", string(in.Type)},
		{"title", in.Title},
		{"content", in.Content},
		{"url", in.URL},
		{"apply_transformations", strings.Join(in.ApplyTransformations, ",")},
		{"embed", strconv.FormatBool(in.Embed)},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}
	if in.Type == models.SourceUpload {
		part, err := w.CreateFormFile("file", in.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(in.File); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// DeleteSource removes the source with id.
func (c *Client) DeleteSource(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/sources/"+seg(id), nil, "")
	return err
}

// SearchSources runs a keyword search over a notebook's sources. A limit of
// 0 leaves the server default.
func (c *Client) SearchSources(ctx context.Context, notebookID, query string, limit int) ([]models.SourceHit, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks/"+seg(notebookID)+"/sources/search?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	var hits []models.SourceHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, apperr.Malformed(http.StatusOK, "search results", err.Error())
	}
	return hits, nil
}

// ListChatSessions returns the chat sessions of the notebook with notebookID.
func (c *Client) ListChatSessions(ctx context.Context, notebookID string) ([]models.ChatSession, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/chat/sessions/"+seg(notebookID), nil, "")
	if err != nil {
		return nil, err
	}
	return models.DecodeChatSessions(data, notebookID)
}

// GetChatSession returns the session with id and its transcript.
func (c *Client) GetChatSession(ctx context.Context, id string) (models.ChatSession, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/chat/session/"+seg(id), nil, "")
	if err != nil {
		return models.ChatSession{}, err
	}
	return models.DecodeChatSession(data)
}

// SendMessage posts a user message to a notebook chat and returns the
// assistant reply. An empty req.SessionID lets the server open a session.
func (c *Client) SendMessage(ctx context.Context, notebookID string, req models.SendMessageRequest) (models.ChatReply, error) {
	q := url.Values{"notebook_id": {notebookID}}
	if req.SessionID != "" {
		q.Set("session_id", req.SessionID)
	}
	data, err := c.doJSON(ctx, http.MethodPost, "/api/v1/chat/message?"+q.Encode(), req)
	if err != nil {
		return models.ChatReply{}, err
	}
	return models.DecodeChatReply(data)
}

// DeleteChatSession removes the session with id.
func (c *Client) DeleteChatSession(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/chat/sessions/"+seg(id), nil, "")
	return err
}

// ListNotes returns the notes of the notebook with notebookID, most recently
// updated first.
func (c *Client) ListNotes(ctx context.Context, notebookID string) ([]models.Note, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks/"+seg(notebookID)+"/notes", nil, "")
	if err != nil {
		return nil, err
	}
	return models.DecodeNotes(data, notebookID)
}

// ListNotesByName returns the notes of the notebook routed by notebookName.
func (c *Client) ListNotesByName(ctx context.Context, notebookName string) ([]models.Note, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notebooks/by-name/"+seg(notebookName)+"/notes", nil, "")
	if err != nil {
		return nil, err
	}
	return models.DecodeNotes(data, "")
}

// GetNote returns the note with id.
func (c *Client) GetNote(ctx context.Context, id string) (models.Note, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notes/"+seg(id), nil, "")
	if err != nil {
		return models.Note{}, err
	}
	return models.DecodeNote(data, "")
}

// GetNoteByTitle returns the note with title. Exact case wins over a
// case-insensitive match.
func (c *Client) GetNoteByTitle(ctx context.Context, title string) (models.Note, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/notes/by-title/"+seg(title), nil, "")
	if err != nil {
		return models.Note{}, err
	}
	return models.DecodeNote(data, "")
}

// CreateNote adds a note to the notebook addressed by ref.
func (c *Client) CreateNote(ctx context.Context, ref models.NotebookRef, in models.NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, err
	}
	path := "/api/v1/notebooks/" + seg(ref.ID) + "/notes"
	if ref.ID == "" {
		path = "/api/v1/notes?" + url.Values{"notebook_name": {ref.Name}}.Encode()
	}
	data, err := c.doJSON(ctx, http.MethodPost, path, in)
	if err != nil {
		return models.Note{}, err
	}
	return models.DecodeNote(data, ref.ID)
}

// UpdateNote applies patch to the note with id and returns the result.
func (c *Client) UpdateNote(ctx context.Context, id string, patch models.NotePatch) (models.Note, error) {
	if err := patch.Validate(); err != nil {
		return models.Note{}, err
	}
	data, err := c.doJSON(ctx, http.MethodPatch, "/api/v1/notes/"+seg(id), patch)
	if err != nil {
		return models.Note{}, err
	}
	return models.DecodeNote(data, "")
}

// DeleteNote removes the note with id.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/notes/"+seg(id), nil, "")
	return err
}
