package workspace

import (
	"context"

	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/mutation"
)

// Notes returns the notes of the notebook with id.
func (w *Workspace) Notes(ctx context.Context, notebookID string) ([]models.Note, error) {
	return read[[]models.Note](ctx, w, cache.Notes(notebookID))
}

// NotesByName returns the notes of the notebook a route name points at.
func (w *Workspace) NotesByName(ctx context.Context, name string) ([]models.Note, error) {
	return read[[]models.Note](ctx, w, cache.NotesByName(name))
}

// Note returns a single note.
func (w *Workspace) Note(ctx context.Context, id string) (models.Note, error) {
	return read[models.Note](ctx, w, cache.Note(id))
}

// NoteByTitle looks a note up by title and caches it under its id.
func (w *Workspace) NoteByTitle(ctx context.Context, title string) (models.Note, error) {
	n, err := w.remote.GetNoteByTitle(ctx, title)
	if err != nil {
		return models.Note{}, err
	}
	w.cache.Set(cache.Note(n.ID), n)
	return n, nil
}

// cachedNote finds a note by id in its own entry or any cached note list.
func (w *Workspace) cachedNote(id string) (models.Note, bool) {
	if n, ok := cache.Value[models.Note](w.cache, cache.Note(id)); ok {
		return n, true
	}
	for _, key := range w.cache.Keys() {
		if key.Kind() != cache.KindNotes && key.Kind() != cache.KindNotesByName {
			continue
		}
		list, _ := cache.Value[[]models.Note](w.cache, key)
		for _, n := range list {
			if n.ID == id {
				return n, true
			}
		}
	}
	return models.Note{}, false
}

// editNoteLists rewrites every cached note list with fn. fn reports whether
// it changed the list.
func editNoteLists(tx *cache.Tx, fn func([]models.Note) ([]models.Note, bool)) {
	for _, key := range tx.Keys() {
		if key.Kind() != cache.KindNotes && key.Kind() != cache.KindNotesByName {
			continue
		}
		data, ok := tx.Data(key)
		if !ok {
			continue
		}
		list, ok := data.([]models.Note)
		if !ok {
			continue
		}
		if out, changed := fn(list); changed {
			tx.Set(key, out)
		}
	}
}

// putNote writes n into its id entry when cached, or always when force is
// set, and into every cached list holding it.
func putNote(tx *cache.Tx, n models.Note, force bool) {
	if _, ok := tx.Get(cache.Note(n.ID)); ok || force {
		tx.Set(cache.Note(n.ID), n)
	}
	editNoteLists(tx, func(list []models.Note) ([]models.Note, bool) {
		for _, existing := range list {
			if existing.ID == n.ID {
				return models.ReplaceNote(list, n), true
			}
		}
		return list, false
	})
}

// noteOwnerKeys are the keys a write to a note of notebookID makes stale.
// An unknown owner widens them to every cached notebook.
func noteOwnerKeys(notebookID string) []cache.Key {
	keys := []cache.Key{cache.Family(cache.KindNotesByName), cache.Family(cache.KindNotebookByName)}
	if notebookID == "" {
		return append(keys, cache.Family(cache.KindNotes), cache.Family(cache.KindNotebook))
	}
	return append(keys, cache.Notes(notebookID), cache.Notebook(notebookID))
}

// CreateNote adds a note to the notebook ref points at. Nothing is patched
// before the server answers.
func (w *Workspace) CreateNote(ctx context.Context, ref models.NotebookRef, in models.NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, err
	}
	ref = w.resolveRef(ref)
	target := models.ByID(ref.ID)
	if ref.ID == "" {
		target = models.ByName(ref.Name)
	}
	var keys []cache.Key
	if ref.ID != "" {
		keys = append(keys, cache.Notes(ref.ID), cache.Notebook(ref.ID))
	}
	if ref.Name != "" {
		keys = append(keys, cache.NotesByName(ref.Name), cache.NotebookByName(ref.Name))
	}

	res, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "add note",
		Success: "Note saved",
		Do: func(ctx context.Context) (interface{}, error) {
			return w.remote.CreateNote(ctx, target, in)
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			n := result.(models.Note)
			tx.Set(cache.Note(n.ID), n)
		},
		Invalidates: keys,
		InvalidatesFrom: func(result interface{}) []cache.Key {
			n := result.(models.Note)
			if n.NotebookID == "" || n.NotebookID == ref.ID {
				return nil
			}
			return []cache.Key{cache.Notes(n.NotebookID), cache.Notebook(n.NotebookID)}
		},
	})
	if err != nil {
		return models.Note{}, err
	}
	return res.(models.Note), nil
}

// UpdateNote applies patch to a note, showing the change in every cached
// list at once.
func (w *Workspace) UpdateNote(ctx context.Context, id string, patch models.NotePatch) (models.Note, error) {
	if err := patch.Validate(); err != nil {
		return models.Note{}, err
	}
	current, known := w.cachedNote(id)

	res, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "update note",
		Success: "Note updated",
		Optimistic: func(tx *cache.Tx) {
			if known {
				putNote(tx, patch.Apply(current), false)
			}
		},
		Do: func(ctx context.Context) (interface{}, error) {
			return w.remote.UpdateNote(ctx, id, patch)
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			n := result.(models.Note)
			if n.NotebookID == "" {
				n.NotebookID = current.NotebookID
			}
			putNote(tx, n, true)
		},
		Invalidates: noteOwnerKeys(current.NotebookID),
		InvalidatesFrom: func(result interface{}) []cache.Key {
			n := result.(models.Note)
			if n.NotebookID == "" || n.NotebookID == current.NotebookID {
				return nil
			}
			return []cache.Key{cache.Notes(n.NotebookID), cache.Notebook(n.NotebookID)}
		},
	})
	if err != nil {
		return models.Note{}, err
	}
	return res.(models.Note), nil
}

// DeleteNote removes a note from every cached note list at once.
func (w *Workspace) DeleteNote(ctx context.Context, id string) error {
	current, _ := w.cachedNote(id)
	_, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "delete note",
		Success: "Note deleted",
		Optimistic: func(tx *cache.Tx) {
			editNoteLists(tx, func(list []models.Note) ([]models.Note, bool) {
				return models.WithoutNote(list, id)
			})
			tx.Remove(cache.Note(id))
		},
		Do: func(ctx context.Context) (interface{}, error) {
			return nil, w.remote.DeleteNote(ctx, id)
		},
		Invalidates: noteOwnerKeys(current.NotebookID),
	})
	return err
}
