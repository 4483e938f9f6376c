package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/keyword"
	"github.com/varunkrunch/opennotebook/internal/models"
)

// Prompt is what a Responder sees when answering a chat message.
type Prompt struct {
	Notebook models.Notebook
	Sources  []models.Source
	History  []models.ChatMessage
	Message  string
}

// Responder produces the assistant reply to a chat message.
type Responder interface {
	Reply(ctx context.Context, p Prompt) (string, error)
}

// TitleResponder answers from the titles of the notebook's sources, ranked
// by a keyword search for the message when an index is available.
type TitleResponder struct {
	index keyword.SourceIndex
}

// NewTitleResponder returns a TitleResponder. index may be nil.
func NewTitleResponder(index keyword.SourceIndex) *TitleResponder {
	return &TitleResponder{index: index}
}

const maxCited = 3

func (t *TitleResponder) Reply(ctx context.Context, p Prompt) (string, error) {
	if len(p.Sources) == 0 {
		return fmt.Sprintf("The notebook %q has no sources yet. Add a source and ask again.", p.Notebook.Name), nil
	}
	var cited []string
	if t.index != nil {
		hits, err := t.index.Search(ctx, p.Notebook.ID, p.Message, maxCited, &keyword.SearchOptions{FuzzyEnabled: true})
		if err != nil {
			return "", fmt.Errorf("failed to search sources: %w", err)
		}
		for _, h := range hits {
			cited = append(cited, h.Title)
		}
	}
	if len(cited) == 0 {
		titles := make([]string, 0, len(p.Sources))
		for _, src := range p.Sources {
			titles = append(titles, src.Title)
		}
		return fmt.Sprintf("I found nothing about %q. This notebook holds %d source(s): %s.",
			p.Message, len(p.Sources), strings.Join(titles, ", ")), nil
	}
	return fmt.Sprintf("These sources look relevant to %q: %s.", p.Message, strings.Join(cited, ", ")), nil
}
