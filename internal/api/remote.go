// Package api is the client side of the notebook resource API.
package api

import (
	"context"

	"github.com/varunkrunch/opennotebook/internal/models"
)

// Remote is the resource contract the workspace talks to. Every method
// validates the response before returning it; malformed payloads yield an
// *apperr.ServerError.
type Remote interface {
	ListNotebooks(ctx context.Context) ([]models.Notebook, error)
	GetNotebook(ctx context.Context, id string) (models.Notebook, error)
	GetNotebookByName(ctx context.Context, name string) (models.Notebook, error)
	CreateNotebook(ctx context.Context, in models.NotebookInput) (models.Notebook, error)
	UpdateNotebook(ctx context.Context, id string, patch models.NotebookPatch) (models.Notebook, error)
	DeleteNotebook(ctx context.Context, id string) error
	ArchiveNotebook(ctx context.Context, id string) (models.Notebook, error)
	UnarchiveNotebook(ctx context.Context, id string) (models.Notebook, error)

	ListSources(ctx context.Context, notebookID string) ([]models.Source, error)
	ListSourcesByName(ctx context.Context, notebookName string) ([]models.Source, error)
	GetSource(ctx context.Context, id string) (models.Source, error)
	CreateSource(ctx context.Context, ref models.NotebookRef, in models.SourceInput) (models.Source, error)
	DeleteSource(ctx context.Context, id string) error
	SearchSources(ctx context.Context, notebookID, query string, limit int) ([]models.SourceHit, error)

	ListNotes(ctx context.Context, notebookID string) ([]models.Note, error)
	ListNotesByName(ctx context.Context, notebookName string) ([]models.Note, error)
	GetNote(ctx context.Context, id string) (models.Note, error)
	GetNoteByTitle(ctx context.Context, title string) (models.Note, error)
	CreateNote(ctx context.Context, ref models.NotebookRef, in models.NoteInput) (models.Note, error)
	UpdateNote(ctx context.Context, id string, patch models.NotePatch) (models.Note, error)
	DeleteNote(ctx context.Context, id string) error

	ListChatSessions(ctx context.Context, notebookID string) ([]models.ChatSession, error)
	GetChatSession(ctx context.Context, id string) (models.ChatSession, error)
	SendMessage(ctx context.Context, notebookID string, req models.SendMessageRequest) (models.ChatReply, error)
	DeleteChatSession(ctx context.Context, id string) error
}
