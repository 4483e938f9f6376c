package chat

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/mutation"
	"github.com/varunkrunch/opennotebook/internal/notify"
)

type fakeSender struct {
	mu       sync.Mutex
	requests []models.SendMessageRequest
	started  chan struct{}
	release  chan struct{}
	reply    models.ChatReply
	err      error
}

func (f *fakeSender) SendMessage(ctx context.Context, notebookID string, req models.SendMessageRequest) (models.ChatReply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return models.ChatReply{}, f.err
	}
	return f.reply, nil
}

func (f *fakeSender) lastRequest() models.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newComposer(t *testing.T, store *cache.EntityCache, sender Sender, sessionID string) *Composer {
	t.Helper()
	coord := mutation.NewCoordinator(store, mutation.WithNotifier(&notify.Recorder{}))
	return NewComposer(store, coord, sender, "nb1", sessionID)
}

func seedSession(store *cache.EntityCache, id string, msgs ...models.ChatMessage) {
	store.Set(cache.ChatSession(id), models.ChatSession{ID: id, NotebookID: "nb1", Messages: msgs})
}

func TestSendReplacesOptimisticEntryWithoutDuplicates(t *testing.T) {
	store := cache.New()
	first := models.ChatMessage{ID: "msg_0", Role: models.RoleUser, Content: "hello"}
	seedSession(store, "s1", first)

	sender := &fakeSender{
		started: make(chan struct{}),
		release: make(chan struct{}),
		reply: models.ChatReply{
			ChatMessage: models.ChatMessage{ID: "msg_reply", Role: models.RoleAssistant, Content: "answer"},
			SessionID:   "s1",
		},
	}
	c := newComposer(t, store, sender, "s1")
	c.SetDraft("what is in my sources?")
	if c.State() != StateDrafted {
		t.Fatalf("state = %s, want drafted", c.State())
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-sender.started

	during := c.Transcript()
	if len(during) != 2 || !IsTemp(during[1].ID) {
		t.Fatalf("optimistic transcript = %+v", during)
	}
	if c.State() != StateSent || c.Draft() != "" {
		t.Errorf("state = %s draft = %q", c.State(), c.Draft())
	}
	if _, err := c.Send(context.Background(), "again"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("second send err = %v, want ErrSendInFlight", err)
	}

	// A revalidation lands before the reply and already holds the confirmed messages.
	req := sender.lastRequest()
	seedSession(store, "s1", first,
		models.ChatMessage{ID: req.MessageID, Role: models.RoleUser, Content: req.Message},
		sender.reply.ChatMessage)

	close(sender.release)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := c.Transcript()
	wantIDs := []string{"msg_0", req.MessageID, "msg_reply"}
	if len(got) != len(wantIDs) {
		t.Fatalf("transcript = %+v", got)
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("message %d id = %q, want %q", i, got[i].ID, id)
		}
	}
	if c.State() != StateConfirmed {
		t.Errorf("state = %s, want confirmed", c.State())
	}
	if e, _ := store.Get(cache.ChatSession("s1")); !e.Stale {
		t.Error("session key not invalidated")
	}
}

func TestSendFailureRestoresTranscript(t *testing.T) {
	store := cache.New()
	seedSession(store, "s1", models.ChatMessage{ID: "msg_0", Role: models.RoleUser, Content: "hi"})
	sender := &fakeSender{err: &apperr.ServerError{Status: 500, Detail: "model unavailable"}}
	c := newComposer(t, store, sender, "s1")

	before := len(c.Transcript())
	c.SetDraft("question")
	if _, err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := len(c.Transcript()); got != before {
		t.Errorf("transcript length = %d, want %d", got, before)
	}
	if c.State() != StateFailed || c.Err() == nil {
		t.Errorf("state = %s err = %v", c.State(), c.Err())
	}
	if c.Draft() != "" {
		t.Errorf("draft restored: %q", c.Draft())
	}
}

func TestSendAdoptsNewSession(t *testing.T) {
	store := cache.New()
	sender := &fakeSender{reply: models.ChatReply{
		ChatMessage: models.ChatMessage{ID: "msg_r", Role: models.RoleAssistant, Content: "hi"},
		SessionID:   "s9",
	}}
	c := newComposer(t, store, sender, "")
	if c.Key() != cache.ChatDraft("nb1") {
		t.Fatalf("key = %s", c.Key())
	}

	if _, err := c.Send(context.Background(), "start"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if c.SessionID() != "s9" {
		t.Errorf("session = %q, want s9", c.SessionID())
	}
	if _, ok := store.Get(cache.ChatDraft("nb1")); ok {
		t.Error("draft transcript still cached")
	}
	session, ok := cache.Value[models.ChatSession](store, cache.ChatSession("s9"))
	if !ok || session.ID != "s9" || len(session.Messages) != 2 {
		t.Fatalf("session = %+v", session)
	}
	if session.Messages[0].Role != models.RoleUser || session.Messages[1].Role != models.RoleAssistant {
		t.Errorf("roles = %s, %s", session.Messages[0].Role, session.Messages[1].Role)
	}
	if sender.lastRequest().SessionID != "" {
		t.Error("request carried a session id")
	}
}

func TestSendEmptyIsRejected(t *testing.T) {
	sender := &fakeSender{}
	c := newComposer(t, cache.New(), sender, "s1")
	c.SetDraft("   ")
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	_, err := c.Submit(context.Background())
	if !apperr.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
	if len(sender.requests) != 0 {
		t.Error("empty message was dispatched")
	}
}

func TestIDs(t *testing.T) {
	var ids IDs
	temp := regexp.MustCompile(`^optimistic:\d+-[0-9a-f]{8}$`)
	msg := regexp.MustCompile(`^msg_[0-9a-f]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := ids.Temp()
		if !temp.MatchString(id) || !IsTemp(id) {
			t.Fatalf("temp id %q has wrong form", id)
		}
		if seen[id] {
			t.Fatalf("duplicate temp id %q", id)
		}
		seen[id] = true
		if m := ids.Message(); !msg.MatchString(m) || IsTemp(m) {
			t.Fatalf("message id %q has wrong form", m)
		}
	}
}
