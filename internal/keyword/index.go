// Package keyword provides full-text search over notebook sources.
package keyword

import (
	"context"

	"github.com/varunkrunch/opennotebook/internal/models"
)

// SearchOptions optional parameters for source search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution of title matches. Use 1.0 for no boost.
	TitleBoost float64
	// FuzzyEnabled enables typo tolerant matching.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
}

// SourceIndex defines source search operations.
type SourceIndex interface {
	Index(ctx context.Context, src *models.Source) error
	Search(ctx context.Context, notebookID, query string, limit int, opts *SearchOptions) ([]models.SourceHit, error)
	Delete(ctx context.Context, id string) error
	DeleteNotebook(ctx context.Context, notebookID string) error
	DocCount() (uint64, error)
	Close() error
}
