package cache

import (
	"reflect"
	"testing"
)

func TestKey_KindAndParam(t *testing.T) {
	tests := []struct {
		key   Key
		kind  string
		param string
	}{
		{Notebooks(), KindNotebooks, ""},
		{Notebook("nb1"), KindNotebook, "nb1"},
		{Sources("notebook:abc"), KindSources, "notebook:abc"},
		{NotebookByName("Research Notes"), KindNotebookByName, "Research Notes"},
		{ChatSession("chat_session:1"), KindChatSession, "chat_session:1"},
		{Notes("notebook:abc"), KindNotes, "notebook:abc"},
		{Note("note:1"), KindNote, "note:1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			if got := tt.key.Kind(); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
			if got := tt.key.Param(); got != tt.param {
				t.Errorf("Param() = %q, want %q", got, tt.param)
			}
		})
	}
}

func TestKey_FamilyMatches(t *testing.T) {
	fam := Family(KindSources)
	if !fam.IsFamily() {
		t.Fatal("Family key should report IsFamily")
	}
	if !fam.Matches(Sources("nb1")) {
		t.Error("sources family should match sources:nb1")
	}
	if fam.Matches(SourcesByName("nb1")) {
		t.Error("sources family should not match sources-by-name")
	}
	if Family(KindNotes).Matches(NotesByName("nb1")) {
		t.Error("notes family should not match notes-by-name")
	}
	if fam.Matches(Notebooks()) {
		t.Error("sources family should not match notebooks")
	}
	if !Notebooks().Matches(Notebooks()) {
		t.Error("concrete key should match itself")
	}
}

func TestExpand(t *testing.T) {
	present := []Key{Notebooks(), Sources("a"), Sources("b"), Source("s1")}
	got := Expand([]Key{Family(KindSources), Notebooks(), Sources("a"), Notebook("x")}, present)
	want := []Key{Sources("a"), Sources("b"), Notebooks(), Notebook("x")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}
