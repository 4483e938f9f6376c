package workspace

import (
	"context"

	"github.com/varunkrunch/opennotebook/internal/cache"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/mutation"
)

// Sources returns the sources of the notebook with id.
func (w *Workspace) Sources(ctx context.Context, notebookID string) ([]models.Source, error) {
	return read[[]models.Source](ctx, w, cache.Sources(notebookID))
}

// SourcesByName returns the sources of the notebook a route name points at.
func (w *Workspace) SourcesByName(ctx context.Context, name string) ([]models.Source, error) {
	return read[[]models.Source](ctx, w, cache.SourcesByName(name))
}

// Source returns a single source.
func (w *Workspace) Source(ctx context.Context, id string) (models.Source, error) {
	return read[models.Source](ctx, w, cache.Source(id))
}

// SearchSources runs a full-text search over a notebook's sources.
func (w *Workspace) SearchSources(ctx context.Context, notebookID, query string) ([]models.SourceHit, error) {
	return read[[]models.SourceHit](ctx, w, cache.SourceSearch(notebookID, query))
}

// resolveRef fills in whichever of id and name ref lacks from the cache.
func (w *Workspace) resolveRef(ref models.NotebookRef) models.NotebookRef {
	if ref.ID != "" && ref.Name != "" {
		return ref
	}
	if ref.ID != "" {
		if n, ok := w.cachedNotebook(ref.ID); ok {
			ref.Name = n.Name
		}
		return ref
	}
	if n, ok := cache.Value[models.Notebook](w.cache, cache.NotebookByName(ref.Name)); ok {
		ref.ID = n.ID
		return ref
	}
	if list, ok := cache.Value[[]models.Notebook](w.cache, cache.Notebooks()); ok {
		for _, n := range list {
			if n.Name == ref.Name {
				ref.ID = n.ID
				break
			}
		}
	}
	return ref
}

func sourceKeys(ref models.NotebookRef) []cache.Key {
	var keys []cache.Key
	if ref.ID != "" {
		keys = append(keys, cache.Sources(ref.ID), cache.Notebook(ref.ID))
	}
	if ref.Name != "" {
		keys = append(keys, cache.SourcesByName(ref.Name), cache.NotebookByName(ref.Name))
	}
	return append(keys, cache.Family(cache.KindSourceSearch))
}

// CreateSource adds a source to the notebook ref points at. Input is
// validated before anything is sent.
func (w *Workspace) CreateSource(ctx context.Context, ref models.NotebookRef, in models.SourceInput) (models.Source, error) {
	if err := in.Validate(); err != nil {
		return models.Source{}, err
	}
	ref = w.resolveRef(ref)
	target := ref
	if target.ID == "" {
		target = models.ByName(ref.Name)
	} else {
		target = models.ByID(ref.ID)
	}

	res, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "add source",
		Success: "Source added",
		Do: func(ctx context.Context) (interface{}, error) {
			return w.remote.CreateSource(ctx, target, in)
		},
		Commit: func(tx *cache.Tx, result interface{}) {
			s := result.(models.Source)
			tx.Set(cache.Source(s.ID), s)
		},
		Invalidates: sourceKeys(ref),
		InvalidatesFrom: func(result interface{}) []cache.Key {
			s := result.(models.Source)
			if s.NotebookID == "" || s.NotebookID == ref.ID {
				return nil
			}
			return []cache.Key{cache.Sources(s.NotebookID), cache.Notebook(s.NotebookID)}
		},
	})
	if err != nil {
		return models.Source{}, err
	}
	return res.(models.Source), nil
}

// DeleteSource removes a source from every cached source list at once.
func (w *Workspace) DeleteSource(ctx context.Context, id string) error {
	_, err := w.mutate.Run(ctx, mutation.Mutation{
		Name:    "delete source",
		Success: "Source deleted",
		Optimistic: func(tx *cache.Tx) {
			for _, key := range tx.Keys() {
				if key.Kind() != cache.KindSources && key.Kind() != cache.KindSourcesByName {
					continue
				}
				data, ok := tx.Data(key)
				if !ok {
					continue
				}
				list, ok := data.([]models.Source)
				if !ok {
					continue
				}
				if rest, found := models.WithoutSource(list, id); found {
					tx.Set(key, rest)
				}
			}
			tx.Remove(cache.Source(id))
		},
		Do: func(ctx context.Context) (interface{}, error) {
			return nil, w.remote.DeleteSource(ctx, id)
		},
		Invalidates: []cache.Key{
			cache.Family(cache.KindSources),
			cache.Family(cache.KindSourcesByName),
			cache.Family(cache.KindSourceSearch),
			cache.Notebooks(),
		},
	})
	return err
}
