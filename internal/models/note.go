package models

import (
	"fmt"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/apperr"
)

// NoteType tells who wrote a note.
type NoteType string

const (
	NoteHuman NoteType = "human"
	NoteAI    NoteType = "ai"
)

// Valid reports whether t is a known note type.
func (t NoteType) Valid() bool { return t == NoteHuman || t == NoteAI }

// Note is free text written into a notebook by the user or by the assistant.
type Note struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebook_id,omitempty"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Type       NoteType  `json:"note_type"`
	Created    Timestamp `json:"created"`
	Updated    Timestamp `json:"updated"`
}

func (Note) EntityKind() Kind   { return KindNote }
func (n Note) EntityID() string { return n.ID }
func (Note) sealed()            {}

// Summary returns the embedded notebook form of n.
func (n Note) Summary() NoteSummary {
	return NoteSummary{ID: n.ID, Title: n.Title}
}

// NoteInput is the body of a create-note request.
type NoteInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Type    NoteType `json:"note_type,omitempty"`
}

// Validate requires a title and a known type. An empty type means human.
func (in NoteInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.Invalid("title", "must be provided")
	}
	if in.Type != "" && !in.Type.Valid() {
		return apperr.Invalid("note_type", fmt.Sprintf("%q is not one of human, ai", in.Type))
	}
	return nil
}

// NotePatch is the body of an update-note request. Nil fields are left unchanged.
type NotePatch struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Type    *NoteType `json:"note_type,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Type == nil
}

// Validate rejects empty patches, blank titles and unknown types.
func (p NotePatch) Validate() error {
	if p.Empty() {
		return apperr.Invalid("note", "no fields provided for update")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apperr.Invalid("title", "must not be blank")
	}
	if p.Type != nil && !p.Type.Valid() {
		return apperr.Invalid("note_type", fmt.Sprintf("%q is not one of human, ai", *p.Type))
	}
	return nil
}

// Apply returns a copy of n with the patch applied.
func (p NotePatch) Apply(n Note) Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Type != nil {
		n.Type = *p.Type
	}
	return n
}

// WithoutNote returns a copy of list without the note with id, and whether it was present.
func WithoutNote(list []Note, id string) ([]Note, bool) {
	out := make([]Note, 0, len(list))
	found := false
	for _, n := range list {
		if n.ID == id {
			found = true
			continue
		}
		out = append(out, n)
	}
	return out, found
}

// ReplaceNote returns a copy of list with the note sharing n's id replaced by n.
func ReplaceNote(list []Note, n Note) []Note {
	out := make([]Note, len(list))
	for i := range list {
		if list[i].ID == n.ID {
			out[i] = n
			continue
		}
		out[i] = list[i]
	}
	return out
}
