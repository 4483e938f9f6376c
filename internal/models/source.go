package models

import (
	"fmt"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/apperr"
)

// SourceType is how a source's content was provided.
type SourceType string

const (
	SourceText   SourceType = "text"
	SourceLink   SourceType = "link"
	SourceUpload SourceType = "upload"
)

// ParseSourceType maps wire values to a SourceType. Servers also
// report "url" and "youtube" for links.
func ParseSourceType(s string) (SourceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return SourceText, true
	case "link", "url", "youtube":
		return SourceLink, true
	case "upload", "file":
		return SourceUpload, true
	}
	return "", false
}

// SourceStatus is the server-side processing state of a source.
type SourceStatus string

const (
	StatusPending    SourceStatus = "pending"
	StatusProcessing SourceStatus = "processing"
	StatusCompleted  SourceStatus = "completed"
	StatusFailed     SourceStatus = "failed"
)

func (s SourceStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted:
		return 2
	case StatusFailed:
		return 3
	}
	return -1
}

// Valid reports whether s is one of the known statuses.
func (s SourceStatus) Valid() bool { return s.rank() >= 0 }

// CanAdvanceTo reports whether moving from s to next respects forward-only
// progression. Any non-terminal state may move to failed.
func (s SourceStatus) CanAdvanceTo(next SourceStatus) bool {
	if !next.Valid() || !s.Valid() {
		return false
	}
	if s == StatusCompleted || s == StatusFailed {
		return s == next
	}
	return next.rank() >= s.rank()
}

// Insight is a titled piece of derived content attached to a source.
type Insight struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Source is content attached to exactly one notebook.
type Source struct {
	ID             string                 `json:"id"`
	NotebookID     string                 `json:"notebook_id"`
	Type           SourceType             `json:"type"`
	Title          string                 `json:"title"`
	Status         SourceStatus           `json:"status"`
	FullText       string                 `json:"full_text,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	EmbeddedChunks int                    `json:"embedded_chunks"`
	Insights       []Insight              `json:"insights,omitempty"`
	Created        Timestamp              `json:"created"`
	Updated        Timestamp              `json:"updated"`
}

func (Source) EntityKind() Kind   { return KindSource }
func (s Source) EntityID() string { return s.ID }
func (Source) sealed()            {}

// Summary returns the embedded notebook form of s.
func (s Source) Summary() SourceSummary {
	return SourceSummary{ID: s.ID, Title: s.Title, Type: s.Type, Status: s.Status}
}

// SourceInput is the multipart payload of a create-source request.
type SourceInput struct {
	Type                 SourceType
	Title                string
	Content              string
	URL                  string
	FileName             string
	File                 []byte
	ApplyTransformations []string
	Embed                bool
}

// Validate checks the fields required by the source type.
func (in SourceInput) Validate() error {
	switch in.Type {
	case SourceText:
		if strings.TrimSpace(in.Content) == "" {
			return apperr.Invalid("content", "must be provided for text sources")
		}
	case SourceLink:
		if strings.TrimSpace(in.URL) == "" {
			return apperr.Invalid("url", "must be provided for link sources")
		}
	case SourceUpload:
		if in.FileName == "" || len(in.File) == 0 {
			return apperr.Invalid("file", "must be provided for upload sources")
		}
	default:
		return apperr.Invalid("type", fmt.Sprintf("%q is not one of text, link, upload", in.Type))
	}
	return nil
}

// SourceHit is a single source search result.
type SourceHit struct {
	SourceID   string  `json:"source_id"`
	NotebookID string  `json:"notebook_id"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

// WithoutSource returns a copy of list without the source with id, and whether it was present.
func WithoutSource(list []Source, id string) ([]Source, bool) {
	out := make([]Source, 0, len(list))
	found := false
	for _, s := range list {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	return out, found
}
