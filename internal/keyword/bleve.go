package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/varunkrunch/opennotebook/internal/models"
)

const defaultTitleBoost = 3.0

// indexedSource is the document stored per source.
type indexedSource struct {
	ID         string `json:"id"`
	NotebookID string `json:"notebook_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

// BleveIndex implements SourceIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ SourceIndex = (*BleveIndex)(nil)

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match the exact word.
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("notebook_id", keywordFieldMapping)
	im.AddDocumentMapping("source", docMapping)
	im.DefaultType = "source"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path gives
// an in-memory index. If the mapping changes, remove the index directory to
// force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces src.
func (b *BleveIndex) Index(ctx context.Context, src *models.Source) error {
	doc := indexedSource{ID: src.ID, NotebookID: src.NotebookID, Title: src.Title, Content: src.FullText}
	if err := b.index.Index(src.ID, doc); err != nil {
		return fmt.Errorf("failed to index source %s: %w", src.ID, err)
	}
	return nil
}

// Search returns up to limit sources of notebookID matching query, best first.
func (b *BleveIndex) Search(ctx context.Context, notebookID, query string, limit int, opts *SearchOptions) ([]models.SourceHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	titleBoost := defaultTitleBoost
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	title := fieldQuery(query, "title", fuzzy, fuzziness)
	title.(blevequery.BoostableQuery).SetBoost(titleBoost)
	content := fieldQuery(query, "content", fuzzy, fuzziness)

	scope := bleve.NewTermQuery(notebookID)
	scope.SetField("notebook_id")

	q := bleve.NewConjunctionQuery(scope, bleve.NewDisjunctionQuery(title, content))
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"title", "notebook_id"}

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	hits := make([]models.SourceHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		h := models.SourceHit{SourceID: hit.ID, NotebookID: notebookID, Score: hit.Score}
		if t, ok := hit.Fields["title"].(string); ok {
			h.Title = t
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// fieldQuery matches query against field. Fuzzy queries are a disjunction of
// one fuzzy query per term.
func fieldQuery(query, field string, fuzzy bool, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(query)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
}

// Delete removes a source from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DeleteNotebook removes every source of a notebook.
func (b *BleveIndex) DeleteNotebook(ctx context.Context, notebookID string) error {
	q := bleve.NewTermQuery(notebookID)
	q.SetField("notebook_id")
	for {
		req := bleve.NewSearchRequest(q)
		req.Size = 500
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete notebook sources: %w", err)
		}
	}
}

// DocCount returns the number of indexed sources.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
