// Package storage defines the persistence interface of the dev server.
package storage

import (
	"context"
	"errors"

	"github.com/varunkrunch/opennotebook/internal/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a notebook name is already taken.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition is returned when a source status would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Storage defines notebook, source, note and chat persistence operations.
type Storage interface {
	// Notebook operations
	CreateNotebook(ctx context.Context, n *models.Notebook) error
	GetNotebook(ctx context.Context, id string) (*models.Notebook, error)
	GetNotebookByName(ctx context.Context, name string) (*models.Notebook, error)
	ListNotebooks(ctx context.Context) ([]models.Notebook, error)
	UpdateNotebook(ctx context.Context, n *models.Notebook) error
	DeleteNotebook(ctx context.Context, id string) error

	// Source operations
	CreateSource(ctx context.Context, s *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	ListSources(ctx context.Context, notebookID string) ([]models.Source, error)
	UpdateSource(ctx context.Context, s *models.Source) error
	DeleteSource(ctx context.Context, id string) error

	// Note operations
	CreateNote(ctx context.Context, n *models.Note) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	GetNoteByTitle(ctx context.Context, title string) (*models.Note, error)
	ListNotes(ctx context.Context, notebookID string) ([]models.Note, error)
	UpdateNote(ctx context.Context, n *models.Note) error
	DeleteNote(ctx context.Context, id string) error

	// Chat operations
	CreateChatSession(ctx context.Context, s *models.ChatSession) error
	GetChatSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListChatSessions(ctx context.Context, notebookID string) ([]models.ChatSession, error)
	AppendMessages(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error
	DeleteChatSession(ctx context.Context, id string) error

	// Stats
	CountNotebooks(ctx context.Context) (int64, error)
	CountSources(ctx context.Context) (int64, error)

	Close() error
}
