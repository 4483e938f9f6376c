package workspace

import (
	"context"

	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/mutation"
)

// ChatSessions returns the chat sessions of a notebook.
func (w *Workspace) ChatSessions(ctx context.Context, notebookID string) ([]models.ChatSession, error) {
	return read[[]models.ChatSession](ctx, w, cache.ChatSessions(notebookID))
}

// ChatSession returns one session with its transcript.
func (w *Workspace) ChatSession(ctx context.Context, id string) (models.ChatSession, error) {
	return read[models.ChatSession](ctx, w, cache.ChatSession(id))
}

// SendMessage sends text in a session through a one-shot composer. An empty
// sessionID starts a new session.
func (w *Workspace) SendMessage(ctx context.Context, notebookID, sessionID, text string) (models.ChatReply, error) {
	return w.NewComposer(notebookID, sessionID).Send(ctx, text)
}

// DeleteChatSession removes a session from every cached session list at once.
func (w *Workspace) DeleteChatSession(ctx context.Context, id string) error {
	_, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "delete chat session",
		Success: "Chat session deleted",
		Optimistic: func(tx *cache.Tx) {
			for _, key := range tx.Keys() {
				if key.Kind() != cache.KindChatSessions {
					continue
				}
				cache.Update(tx, key, func(list []models.ChatSession) []models.ChatSession {
					rest, _ := models.WithoutSession(list, id)
					return rest
				})
			}
			tx.Remove(cache.ChatSession(id))
		},
		Do: func(ctx context.Context) (interface{}, error) {
			return nil, w.remote.DeleteChatSession(ctx, id)
		},
		Invalidates: []cache.Key{cache.Family(cache.KindChatSessions)},
	})
	return err
}
