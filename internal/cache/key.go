package cache

import "strings"

// Key identifies a cached collection or item, e.g. "notebooks" or
// "sources:notebook:abc". The kind is everything before the first colon, so
// parameters may themselves contain colons.
type Key string

const (
	KindNotebooks      = "notebooks"
	KindNotebook       = "notebook"
	KindNotebookByName = "notebook-by-name"
	KindSources        = "sources"
	KindSourcesByName  = "sources-by-name"
	KindSource         = "source"
	KindNotes          = "notes"
	KindNotesByName    = "notes-by-name"
	KindNote           = "note"
	KindChatSessions   = "chat-sessions"
	KindChatSession    = "chat-session"
	KindChatDraft      = "chat-draft"
	KindSourceSearch   = "source-search"
)

// familySuffix marks a key that stands for every present key of its kind.
const familySuffix = ":*"

func join(kind, param string) Key { return Key(kind + ":" + param) }

// Notebooks is the key of the notebook list.
func Notebooks() Key { return Key(KindNotebooks) }

// Notebook is the key of a single notebook addressed by id.
func Notebook(id string) Key { return join(KindNotebook, id) }

// NotebookByName is the key of a single notebook addressed by its route name.
func NotebookByName(name string) Key { return join(KindNotebookByName, name) }

// Sources is the key of the source list of a notebook addressed by id.
func Sources(notebookID string) Key { return join(KindSources, notebookID) }

// SourcesByName is the key of the source list of a notebook addressed by name.
func SourcesByName(name string) Key { return join(KindSourcesByName, name) }

// Source is the key of a single source.
func Source(id string) Key { return join(KindSource, id) }

// Notes is the key of the note list of a notebook addressed by id.
func Notes(notebookID string) Key { return join(KindNotes, notebookID) }

// NotesByName is the key of the note list of a notebook addressed by name.
func NotesByName(name string) Key { return join(KindNotesByName, name) }

// Note is the key of a single note.
func Note(id string) Key { return join(KindNote, id) }

// ChatSessions is the key of the session list of a notebook.
func ChatSessions(notebookID string) Key { return join(KindChatSessions, notebookID) }

// ChatSession is the key of a single chat session transcript.
func ChatSession(id string) Key { return join(KindChatSession, id) }

// ChatDraft is the key of the transcript of a conversation that has no
// server-side session yet.
func ChatDraft(notebookID string) Key { return join(KindChatDraft, notebookID) }

// SourceSearch is the key of a source search result set.
func SourceSearch(notebookID, query string) Key {
	return join(KindSourceSearch, notebookID+"|"+strings.ToLower(strings.TrimSpace(query)))
}

// Family returns the key standing for every key of kind. The cache never
// expands families itself; callers use Expand.
func Family(kind string) Key { return Key(kind + familySuffix) }

// Kind returns the key's kind.
func (k Key) Kind() string {
	kind, _, _ := strings.Cut(string(k), ":")
	return kind
}

// Param returns the key's parameter, or "" for parameterless keys.
func (k Key) Param() string {
	_, param, _ := strings.Cut(string(k), ":")
	return param
}

// IsFamily reports whether k was built by Family.
func (k Key) IsFamily() bool {
	return strings.HasSuffix(string(k), familySuffix)
}

// Matches reports whether concrete key other is covered by k.
func (k Key) Matches(other Key) bool {
	if !k.IsFamily() {
		return k == other
	}
	kind := strings.TrimSuffix(string(k), familySuffix)
	return other.Kind() == kind && !other.IsFamily()
}

func (k Key) String() string { return string(k) }

// Expand resolves family keys against present and returns a de-duplicated list
// of concrete keys in first-seen order. Concrete keys are kept even when absent.
func Expand(keys []Key, present []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	add := func(k Key) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, k := range keys {
		if !k.IsFamily() {
			add(k)
			continue
		}
		for _, p := range present {
			if k.Matches(p) {
				add(p)
			}
		}
	}
	return out
}
