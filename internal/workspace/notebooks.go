package workspace

import (
	"context"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/apperr"
	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/mutation"
)

// Notebooks returns the notebook list.
func (w *Workspace) Notebooks(ctx context.Context) ([]models.Notebook, error) {
	return read[[]models.Notebook](ctx, w, cache.Notebooks())
}

// Notebook returns the notebook with id.
func (w *Workspace) Notebook(ctx context.Context, id string) (models.Notebook, error) {
	return read[models.Notebook](ctx, w, cache.Notebook(id))
}

// NotebookByName returns the notebook a route name points at.
func (w *Workspace) NotebookByName(ctx context.Context, name string) (models.Notebook, error) {
	return read[models.Notebook](ctx, w, cache.NotebookByName(name))
}

// cachedNotebook finds a notebook by id in the single-notebook entry or the list.
func (w *Workspace) cachedNotebook(id string) (models.Notebook, bool) {
	if n, ok := cache.Value[models.Notebook](w.cache, cache.Notebook(id)); ok {
		return n, true
	}
	if list, ok := cache.Value[[]models.Notebook](w.cache, cache.Notebooks()); ok {
		if i := models.FindNotebook(list, id); i >= 0 {
			return list[i], true
		}
	}
	return models.Notebook{}, false
}

func (w *Workspace) checkName(name, exceptID string) error {
	name = models.NormalizeName(name)
	if name == "" {
		return apperr.Invalid("name", "must not be empty")
	}
	list, ok := cache.Value[[]models.Notebook](w.cache, cache.Notebooks())
	if !ok {
		return nil
	}
	for _, n := range list {
		if n.ID != exceptID && models.NormalizeName(n.Name) == name {
			return apperr.Invalid("name", "is already used by another notebook")
		}
	}
	return nil
}

// CreateNotebook creates a notebook. Nothing is patched before the server
// answers; the list is invalidated afterwards.
func (w *Workspace) CreateNotebook(ctx context.Context, in models.NotebookInput) (models.Notebook, error) {
	if err := w.checkName(in.Name, ""); err != nil {
		return models.Notebook{}, err
	}
	in.Name = models.NormalizeName(in.Name)

	res, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "create notebook",
		Success: "Notebook created",
		Do: func(ctx context.Context) (interface{}, error) {
			return w.remote.CreateNotebook(ctx, in)
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			n := result.(models.Notebook)
			tx.Set(cache.Notebook(n.ID), n)
			tx.Set(cache.NotebookByName(n.Name), n)
		},
		Invalidates: []cache.Key{cache.Notebooks()},
	})
	if err != nil {
		return models.Notebook{}, err
	}
	return res.(models.Notebook), nil
}

// putNotebook writes n everywhere a notebook is cached: its id key, its name
// key and its item in the list. A by-name entry under oldName is dropped when
// the name changed.
func putNotebook(tx *cache.Tx, n models.Notebook, oldName string) {
	tx.Set(cache.Notebook(n.ID), n)
	hadOld := false
	if oldName != "" {
		_, hadOld = tx.Get(cache.NotebookByName(oldName))
	}
	_, hadNew := tx.Get(cache.NotebookByName(n.Name))
	if hadOld && oldName != n.Name {
		tx.Remove(cache.NotebookByName(oldName))
	}
	if hadOld || hadNew {
		tx.Set(cache.NotebookByName(n.Name), n)
	}
	cache.Update(tx, cache.Notebooks(), func(list []models.Notebook) []models.Notebook {
		i := models.FindNotebook(list, n.ID)
		if i < 0 {
			return list
		}
		out := append([]models.Notebook(nil), list...)
		out[i] = n
		return out
	})
}

// UpdateNotebook applies patch to a notebook, showing the change at once.
func (w *Workspace) UpdateNotebook(ctx context.Context, id string, patch models.NotebookPatch) (models.Notebook, error) {
	if patch.Empty() {
		return models.Notebook{}, apperr.Invalid("", "nothing to update")
	}
	if patch.Name != nil {
		if err := w.checkName(*patch.Name, id); err != nil {
			return models.Notebook{}, err
		}
		name := models.NormalizeName(*patch.Name)
		patch.Name = &name
	}
	current, known := w.cachedNotebook(id)

	res, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "update notebook",
		Success: "Notebook updated",
		Optimistic: func(tx *cache.Tx) {
			if known {
				putNotebook(tx, patch.Apply(current), current.Name)
			}
		},
		Do: func(ctx context.Context) (interface{}, error) {
			return w.remote.UpdateNotebook(ctx, id, patch)
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			n := result.(models.Notebook)
			old := current.Name
			if patch.Name != nil {
				old = *patch.Name
			}
			putNotebook(tx, n, old)
		},
		Invalidates: []cache.Key{cache.Notebooks(), cache.Notebook(id)},
	})
	if err != nil {
		return models.Notebook{}, err
	}
	return res.(models.Notebook), nil
}

// RenameNotebook changes a notebook's name.
func (w *Workspace) RenameNotebook(ctx context.Context, id, name string) (models.Notebook, error) {
	return w.UpdateNotebook(ctx, id, models.NotebookPatch{Name: &name})
}

// SetArchived archives or unarchives a notebook. The flag flips in the cache
// right away and flips back if the server refuses.
func (w *Workspace) SetArchived(ctx context.Context, id string, archived bool) (models.Notebook, error) {
	current, known := w.cachedNotebook(id)
	name, success := "archive notebook", "Notebook archived"
	if !archived {
		name, success = "unarchive notebook", "Notebook unarchived"
	}

	res, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    name,
		Success: success,
		Optimistic: func(tx *cache.Tx) {
			if known {
				toggled := current
				toggled.Archived = archived
				putNotebook(tx, toggled, current.Name)
			}
		},
		Do: func(ctx context.Context) (interface{}, error) {
			if archived {
				return w.remote.ArchiveNotebook(ctx, id)
			}
			return w.remote.UnarchiveNotebook(ctx, id)
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			n := result.(models.Notebook)
			putNotebook(tx, n, current.Name)
		},
		Invalidates: []cache.Key{cache.Notebooks()},
	})
	if err != nil {
		return models.Notebook{}, err
	}
	return res.(models.Notebook), nil
}

// scopedKeys returns every present key that belongs to the notebook with id
// and name.
func (w *Workspace) scopedKeys(id, name string) []cache.Key {
	keys := []cache.Key{
		cache.Notebook(id),
		cache.Sources(id),
		cache.Notes(id),
		cache.ChatSessions(id),
		cache.ChatDraft(id),
	}
	if name != "" {
		keys = append(keys, cache.NotebookByName(name), cache.SourcesByName(name), cache.NotesByName(name))
	}
	if notes, ok := cache.Value[[]models.Note](w.cache, cache.Notes(id)); ok {
		for _, n := range notes {
			keys = append(keys, cache.Note(n.ID))
		}
	}
	for _, k := range w.cache.Keys() {
		if k.Kind() == cache.KindSourceSearch && strings.HasPrefix(k.Param(), id+"|") {
			keys = append(keys, k)
		}
	}
	if sessions, ok := cache.Value[[]models.ChatSession](w.cache, cache.ChatSessions(id)); ok {
		for _, s := range sessions {
			keys = append(keys, cache.ChatSession(s.ID))
		}
	}
	return keys
}

// DeleteNotebook removes a notebook from the list at once and invalidates
// everything scoped to it once the server confirms.
func (w *Workspace) DeleteNotebook(ctx context.Context, id string) error {
	current, _ := w.cachedNotebook(id)

	_, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "delete notebook",
		Success: "Notebook deleted",
		Optimistic: func(tx *cache.Tx) {
			cache.Update(tx, cache.Notebooks(), func(list []models.Notebook) []models.Notebook {
				out := make([]models.Notebook, 0, len(list))
				for _, n := range list {
					if n.ID != id {
						out = append(out, n)
					}
				}
				return out
			})
		},
		Do: func(ctx context.Context) (interface{}, error) {
			return nil, w.remote.DeleteNotebook(ctx, id)
		},
		Invalidates: append([]cache.Key{cache.Notebooks()}, w.scopedKeys(id, current.Name)...),
	})
	return err
}
