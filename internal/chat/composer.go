// Package chat implements the optimistic send pipeline of a chat transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/mutation"
)

// ErrSendInFlight is returned when a message is submitted while the previous
// one has not resolved yet.
var ErrSendInFlight = fmt.Errorf("a message is already being sent: %w", mutation.ErrPending)

// State is the phase of the composer's most recent message.
type State int

const (
	StateIdle State = iota
	StateDrafted
	StateSent
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrafted:
		return "drafted"
	case StateSent:
		return "sent"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Sender delivers a user message and returns the assistant's reply.
type Sender interface {
	SendMessage(ctx context.Context, notebookID string, req models.SendMessageRequest) (models.ChatReply, error)
}

// Composer drives one notebook's chat input. The transcript is kept in the
// cache under chat-session:{id}, or chat-draft:{notebook} until the server
// assigns a session.
type Composer struct {
	cache  *cache.EntityCache
	handle *mutation.Handle
	sender Sender
	ids    *IDs
	logger *zap.Logger

	mu         sync.Mutex
	notebookID string
	sessionID  string
	draft      string
	state      State
	err        error
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ComposerOption {
	return func(c *Composer) { c.logger = l }
}

// WithIDs shares an id generator between composers.
func WithIDs(ids *IDs) ComposerOption {
	return func(c *Composer) { c.ids = ids }
}

// NewComposer returns a composer for notebookID. sessionID may be empty; the
// first confirmed reply then supplies it.
func NewComposer(store *cache.EntityCache, coord *mutation.Coordinator, sender Sender, notebookID, sessionID string, opts ...ComposerOption) *Composer {
	c := &Composer{
		cache:      store,
		handle:     mutation.NewHandle(coord),
		sender:     sender,
		ids:        &IDs{},
		logger:     zap.NewNop(),
		notebookID: notebookID,
		sessionID:  sessionID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDraft replaces the draft text.
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
	if c.state == StateSent {
		return
	}
	if strings.TrimSpace(text) == "" {
		c.state = StateIdle
	} else {
		c.state = StateDrafted
	}
}

// Draft returns the current draft text.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// State returns the current phase.
func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed send.
func (c *Composer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SessionID returns the session the transcript belongs to, or "" before the
// first confirmed reply of a new conversation.
func (c *Composer) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Key returns the cache key holding the transcript.
func (c *Composer) Key() cache.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyLocked()
}

func (c *Composer) keyLocked() cache.Key {
	if c.sessionID == "" {
		return cache.ChatDraft(c.notebookID)
	}
	return cache.ChatSession(c.sessionID)
}

// Transcript returns the messages currently shown, optimistic ones included.
func (c *Composer) Transcript() []models.ChatMessage {
	session, _ := cache.Value[models.ChatSession](c.cache, c.Key())
	return session.Messages
}

// Submit sends the current draft.
func (c *Composer) Submit(ctx context.Context) (models.ChatReply, error) {
	return c.Send(ctx, c.Draft())
}

// Send appends text to the transcript right away and sends it. On success the
// temporary entry is replaced by the confirmed message followed by the reply;
// on failure the transcript is restored and the draft stays cleared.
func (c *Composer) Send(ctx context.Context, text string) (models.ChatReply, error) {
	if strings.TrimSpace(text) == "" {
		return models.ChatReply{}, apperr.Invalid("message", "must not be empty")
	}

	c.mu.Lock()
	key := c.keyLocked()
	sessionID := c.sessionID
	c.mu.Unlock()

	tempID := c.ids.Temp()
	messageID := c.ids.Message()
	pending := models.ChatMessage{
		ID:        tempID,
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: models.Now(),
	}

	res, err := c.handle.Run(ctx, mutation.Mutation{
		Name:    "send message",
		Success: "Message sent",
		Optimistic: func(tx *cache.Tx) {
			session := c.sessionAt(tx, key, sessionID)
			session.Messages = append(append([]models.ChatMessage(nil), session.Messages...), pending)
			tx.Set(key, session)

			c.mu.Lock()
			c.draft = ""
			c.state = StateSent
			c.err = nil
			c.mu.Unlock()
		},
		Do: func(ctx context.Context) (interface{}, error) {
			return c.sender.SendMessage(ctx, c.notebookID, models.SendMessageRequest{
				Message:   text,
				SessionID: sessionID,
				MessageID: messageID,
			})
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			reply := result.(models.ChatReply)
			target := key
			if reply.SessionID != "" {
				target = cache.ChatSession(reply.SessionID)
			}
			session := c.sessionAt(tx, key, sessionID)
			if reply.SessionID != "" {
				session.ID = reply.SessionID
			}
			session.Messages = confirm(session.Messages, tempID, models.ChatMessage{
				ID:        messageID,
				Role:      models.RoleUser,
				Content:   text,
				Timestamp: pending.Timestamp,
			}, reply.ChatMessage)
			if target != key {
				tx.Remove(key)
			}
			tx.Set(target, session)

			c.mu.Lock()
			if reply.SessionID != "" {
				c.sessionID = reply.SessionID
			}
			c.state = StateConfirmed
			c.mu.Unlock()
		},
		InvalidatesFrom: func(result interface{}) []cache.Key {
			reply := result.(models.ChatReply)
			keys := []cache.Key{cache.ChatSessions(c.notebookID)}
			if reply.SessionID != "" {
				keys = append(keys, cache.ChatSession(reply.SessionID))
			}
			return keys
		},
	})
	if errors.Is(err, mutation.ErrPending) {
		return models.ChatReply{}, ErrSendInFlight
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.err = err
		c.mu.Unlock()
		c.logger.Debug("chat message failed", zap.String("notebook", c.notebookID), zap.Error(err))
		return models.ChatReply{}, err
	}
	return res.(models.ChatReply), nil
}

func (c *Composer) sessionAt(tx *cache.Tx, key cache.Key, sessionID string) models.ChatSession {
	if data, ok := tx.Data(key); ok {
		if s, ok := data.(models.ChatSession); ok {
			return s
		}
	}
	return models.ChatSession{ID: sessionID, NotebookID: c.notebookID}
}

// confirm rebuilds a transcript: the temporary entry and any entries already
// carrying a confirmed id are dropped, then the confirmed messages are
// appended in order.
func confirm(messages []models.ChatMessage, tempID string, confirmed ...models.ChatMessage) []models.ChatMessage {
	drop := map[string]struct{}{tempID: {}}
	for _, m := range confirmed {
		drop[m.ID] = struct{}{}
	}
	out := make([]models.ChatMessage, 0, len(messages)+len(confirmed))
	for _, m := range messages {
		if _, ok := drop[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return append(out, confirmed...)
}
