package workspace

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/models"
)

// fakeRemote is an in-memory Remote. A gate, when set, blocks the named
// operation after signalling on started until released.
type fakeRemote struct {
	mu        sync.Mutex
	notebooks []models.Notebook
	sources   map[string][]models.Source
	notes     map[string][]models.Note
	sessions  map[string][]models.ChatSession
	seq       int
	calls     map[string]int
	fail      map[string]error
	gates     map[string]*gate
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		sources:  map[string][]models.Source{},
		notes:    map[string][]models.Note{},
		sessions: map[string][]models.ChatSession{},
		calls:    map[string]int{},
		fail:     map[string]error{},
		gates:    map[string]*gate{},
	}
}

// hold installs a one-shot gate on op.
func (f *fakeRemote) hold(op string) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	f.gates[op] = g
	return g
}

func (f *fakeRemote) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	g := f.gates[op]
	delete(f.gates, op)
	err := f.fail[op]
	f.mu.Unlock()
	if g != nil {
		close(g.started)
		<-g.release
	}
	return err
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func notFound(what string) error {
	return &apperr.ServerError{Status: http.StatusNotFound, Detail: what + " not found"}
}

func (f *fakeRemote) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s:%d", prefix, f.seq)
}

func (f *fakeRemote) findNotebook(pred func(models.Notebook) bool) (models.Notebook, int) {
	for i, n := range f.notebooks {
		if pred(n) {
			return n, i
		}
	}
	return models.Notebook{}, -1
}

func (f *fakeRemote) ListNotebooks(ctx context.Context) ([]models.Notebook, error) {
	if err := f.enter("ListNotebooks"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notebook(nil), f.notebooks...), nil
}

func (f *fakeRemote) GetNotebook(ctx context.Context, id string) (models.Notebook, error) {
	if err := f.enter("GetNotebook"); err != nil {
		return models.Notebook{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, i := f.findNotebook(func(n models.Notebook) bool { return n.ID == id })
	if i < 0 {
		return models.Notebook{}, notFound("Notebook")
	}
	return n, nil
}

func (f *fakeRemote) GetNotebookByName(ctx context.Context, name string) (models.Notebook, error) {
	if err := f.enter("GetNotebookByName"); err != nil {
		return models.Notebook{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, i := f.findNotebook(func(n models.Notebook) bool { return n.Name == name })
	if i < 0 {
		return models.Notebook{}, notFound("Notebook")
	}
	return n, nil
}

func (f *fakeRemote) CreateNotebook(ctx context.Context, in models.NotebookInput) (models.Notebook, error) {
	if err := f.enter("CreateNotebook"); err != nil {
		return models.Notebook{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, i := f.findNotebook(func(n models.Notebook) bool { return n.Name == in.Name }); i >= 0 {
		return models.Notebook{}, &apperr.ServerError{Status: http.StatusConflict, Detail: "Notebook name already exists"}
	}
	n := models.Notebook{ID: f.nextID("notebook"), Name: in.Name, Description: in.Description}
	f.notebooks = append(f.notebooks, n)
	return n, nil
}

func (f *fakeRemote) UpdateNotebook(ctx context.Context, id string, patch models.NotebookPatch) (models.Notebook, error) {
	if err := f.enter("UpdateNotebook"); err != nil {
		return models.Notebook{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, i := f.findNotebook(func(n models.Notebook) bool { return n.ID == id })
	if i < 0 {
		return models.Notebook{}, notFound("Notebook")
	}
	n = patch.Apply(n)
	f.notebooks[i] = n
	return n, nil
}

func (f *fakeRemote) DeleteNotebook(ctx context.Context, id string) error {
	if err := f.enter("DeleteNotebook"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, i := f.findNotebook(func(n models.Notebook) bool { return n.ID == id })
	if i < 0 {
		return notFound("Notebook")
	}
	f.notebooks = append(f.notebooks[:i:i], f.notebooks[i+1:]...)
	delete(f.sources, id)
	delete(f.notes, id)
	delete(f.sessions, id)
	return nil
}

func (f *fakeRemote) setArchived(op, id string, archived bool) (models.Notebook, error) {
	if err := f.enter(op); err != nil {
		return models.Notebook{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, i := f.findNotebook(func(n models.Notebook) bool { return n.ID == id })
	if i < 0 {
		return models.Notebook{}, notFound("Notebook")
	}
	n.Archived = archived
	f.notebooks[i] = n
	return n, nil
}

func (f *fakeRemote) ArchiveNotebook(ctx context.Context, id string) (models.Notebook, error) {
	return f.setArchived("ArchiveNotebook", id, true)
}

func (f *fakeRemote) UnarchiveNotebook(ctx context.Context, id string) (models.Notebook, error) {
	return f.setArchived("UnarchiveNotebook", id, false)
}

func (f *fakeRemote) ListSources(ctx context.Context, notebookID string) ([]models.Source, error) {
	if err := f.enter("ListSources"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Source(nil), f.sources[notebookID]...), nil
}

func (f *fakeRemote) ListSourcesByName(ctx context.Context, name string) ([]models.Source, error) {
	if err := f.enter("ListSourcesByName"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, i := f.findNotebook(func(n models.Notebook) bool { return n.Name == name })
	if i < 0 {
		return nil, notFound("Notebook")
	}
	return append([]models.Source(nil), f.sources[n.ID]...), nil
}

func (f *fakeRemote) GetSource(ctx context.Context, id string) (models.Source, error) {
	if err := f.enter("GetSource"); err != nil {
		return models.Source{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.sources {
		for _, s := range list {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return models.Source{}, notFound("Source")
}

func (f *fakeRemote) CreateSource(ctx context.Context, ref models.NotebookRef, in models.SourceInput) (models.Source, error) {
	if err := f.enter("CreateSource"); err != nil {
		return models.Source{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, i := f.findNotebook(func(n models.Notebook) bool {
		return (ref.ID != "" && n.ID == ref.ID) || (ref.ID == "" && n.Name == ref.Name)
	})
	if i < 0 {
		return models.Source{}, notFound("Notebook")
	}
	s := models.Source{
		ID:         f.nextID("source"),
		NotebookID: n.ID,
		Type:       in.Type,
		Title:      in.Title,
		Status:     models.StatusPending,
		FullText:   in.Content,
	}
	f.sources[n.ID] = append(f.sources[n.ID], s)
	return s, nil
}

func (f *fakeRemote) DeleteSource(ctx context.Context, id string) error {
	if err := f.enter("DeleteSource"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for nb, list := range f.sources {
		if rest, ok := models.WithoutSource(list, id); ok {
			f.sources[nb] = rest
			return nil
		}
	}
	return notFound("Source")
}

func (f *fakeRemote) SearchSources(ctx context.Context, notebookID, query string, limit int) ([]models.SourceHit, error) {
	if err := f.enter("SearchSources"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []models.SourceHit
	for _, s := range f.sources[notebookID] {
		if s.Title == query {
			hits = append(hits, models.SourceHit{SourceID: s.ID, NotebookID: notebookID, Title: s.Title, Score: 1})
		}
	}
	return hits, nil
}

func (f *fakeRemote) ListNotes(ctx context.Context, notebookID string) ([]models.Note, error) {
	if err := f.enter("ListNotes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Note(nil), f.notes[notebookID]...), nil
}

func (f *fakeRemote) ListNotesByName(ctx context.Context, name string) ([]models.Note, error) {
	if err := f.enter("ListNotesByName"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, i := f.findNotebook(func(n models.Notebook) bool { return n.Name == name })
	if i < 0 {
		return nil, notFound("Notebook")
	}
	return append([]models.Note(nil), f.notes[n.ID]...), nil
}

func (f *fakeRemote) findNote(pred func(models.Note) bool) (models.Note, string, int) {
	for nb, list := range f.notes {
		for i, n := range list {
			if pred(n) {
				return n, nb, i
			}
		}
	}
	return models.Note{}, "", -1
}

func (f *fakeRemote) GetNote(ctx context.Context, id string) (models.Note, error) {
	if err := f.enter("GetNote"); err != nil {
		return models.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, i := f.findNote(func(n models.Note) bool { return n.ID == id })
	if i < 0 {
		return models.Note{}, notFound("Note")
	}
	return n, nil
}

func (f *fakeRemote) GetNoteByTitle(ctx context.Context, title string) (models.Note, error) {
	if err := f.enter("GetNoteByTitle"); err != nil {
		return models.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, i := f.findNote(func(n models.Note) bool { return n.Title == title })
	if i < 0 {
		return models.Note{}, notFound("Note")
	}
	return n, nil
}

func (f *fakeRemote) CreateNote(ctx context.Context, ref models.NotebookRef, in models.NoteInput) (models.Note, error) {
	if err := f.enter("CreateNote"); err != nil {
		return models.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	nb, i := f.findNotebook(func(n models.Notebook) bool {
		return (ref.ID != "" && n.ID == ref.ID) || (ref.ID == "" && n.Name == ref.Name)
	})
	if i < 0 {
		return models.Note{}, notFound("Notebook")
	}
	typ := in.Type
	if typ == "" {
		typ = models.NoteHuman
	}
	n := models.Note{ID: f.nextID("note"), NotebookID: nb.ID, Title: in.Title, Content: in.Content, Type: typ}
	f.notes[nb.ID] = append(f.notes[nb.ID], n)
	return n, nil
}

func (f *fakeRemote) UpdateNote(ctx context.Context, id string, patch models.NotePatch) (models.Note, error) {
	if err := f.enter("UpdateNote"); err != nil {
		return models.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, nb, i := f.findNote(func(n models.Note) bool { return n.ID == id })
	if i < 0 {
		return models.Note{}, notFound("Note")
	}
	n = patch.Apply(n)
	f.notes[nb] = models.ReplaceNote(f.notes[nb], n)
	return n, nil
}

func (f *fakeRemote) DeleteNote(ctx context.Context, id string) error {
	if err := f.enter("DeleteNote"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for nb, list := range f.notes {
		if rest, ok := models.WithoutNote(list, id); ok {
			f.notes[nb] = rest
			return nil
		}
	}
	return notFound("Note")
}

func (f *fakeRemote) ListChatSessions(ctx context.Context, notebookID string) ([]models.ChatSession, error) {
	if err := f.enter("ListChatSessions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatSession(nil), f.sessions[notebookID]...), nil
}

func (f *fakeRemote) GetChatSession(ctx context.Context, id string) (models.ChatSession, error) {
	if err := f.enter("GetChatSession"); err != nil {
		return models.ChatSession{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.sessions {
		for _, s := range list {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return models.ChatSession{}, notFound("Session")
}

func (f *fakeRemote) SendMessage(ctx context.Context, notebookID string, req models.SendMessageRequest) (models.ChatReply, error) {
	if err := f.enter("SendMessage"); err != nil {
		return models.ChatReply{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.sessions[notebookID]
	idx := -1
	for i, s := range list {
		if s.ID == req.SessionID {
			idx = i
		}
	}
	if idx < 0 {
		list = append(list, models.ChatSession{ID: f.nextID("chat_session"), NotebookID: notebookID})
		idx = len(list) - 1
	}
	reply := models.ChatMessage{ID: f.nextID("msg"), Role: models.RoleAssistant, Content: "echo: " + req.Message}
	s := list[idx]
	s.Messages = append(append([]models.ChatMessage(nil), s.Messages...),
		models.ChatMessage{ID: req.MessageID, Role: models.RoleUser, Content: req.Message},
		reply)
	list[idx] = s
	f.sessions[notebookID] = list
	return models.ChatReply{ChatMessage: reply, SessionID: s.ID}, nil
}

func (f *fakeRemote) DeleteChatSession(ctx context.Context, id string) error {
	if err := f.enter("DeleteChatSession"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for nb, list := range f.sessions {
		if rest, ok := models.WithoutSession(list, id); ok {
			f.sessions[nb] = rest
			return nil
		}
	}
	return notFound("Session")
}
