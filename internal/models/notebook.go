package models

import "strings"

// Notebook groups sources, notes and chat sessions. Name is unique among
// non-deleted notebooks and is used as the routing key.
type Notebook struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Archived    bool            `json:"archived"`
	Created     Timestamp       `json:"created"`
	Updated     Timestamp       `json:"updated"`
	Sources     []SourceSummary `json:"sources,omitempty"`
	Notes       []NoteSummary   `json:"notes,omitempty"`
}

func (Notebook) EntityKind() Kind   { return KindNotebook }
func (n Notebook) EntityID() string { return n.ID }
func (Notebook) sealed()            {}

// SourceSummary is the embedded form of a source inside a notebook.
type SourceSummary struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Type   SourceType   `json:"type,omitempty"`
	Status SourceStatus `json:"status,omitempty"`
}

// NoteSummary is the embedded form of a note inside a notebook.
type NoteSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NotebookInput is the body of a create-notebook request.
type NotebookInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// NotebookPatch is the body of an update-notebook request. Nil fields are left unchanged.
type NotebookPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Archived    *bool   `json:"archived,omitempty"`
}

// Apply returns a copy of n with the patch applied.
func (p NotebookPatch) Apply(n Notebook) Notebook {
	if p.Name != nil {
		n.Name = *p.Name
	}
	if p.Description != nil {
		n.Description = *p.Description
	}
	if p.Archived != nil {
		n.Archived = *p.Archived
	}
	return n
}

// Empty reports whether the patch changes nothing.
func (p NotebookPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Archived == nil
}

// NotebookRef addresses a notebook by id or, when ID is empty, by name.
type NotebookRef struct {
	ID   string
	Name string
}

// ByID returns a reference to the notebook with the given id.
func ByID(id string) NotebookRef { return NotebookRef{ID: id} }

// ByName returns a reference to the notebook with the given name.
func ByName(name string) NotebookRef { return NotebookRef{Name: name} }

// FindNotebook returns the index of the notebook with id in list, or -1.
func FindNotebook(list []Notebook, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// NormalizeName trims a notebook name for comparisons.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}
