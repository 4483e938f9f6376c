// Package cli renders workspace entities for the notebook command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a --output value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

const previewLen = 200

// write encodes v as indented JSON, or calls text for OutputText.
func write(w io.Writer, format OutputFormat, v interface{}, text func(io.Writer)) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func table(w io.Writer, header string, rows func(tw *tabwriter.Writer)) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	_ = tw.Flush()
}

// WriteNotebooks writes a notebook list.
func WriteNotebooks(w io.Writer, notebooks []models.Notebook, format OutputFormat) error {
	return write(w, format, notebooks, func(w io.Writer) {
		if len(notebooks) == 0 {
			fmt.Fprintln(w, "No notebooks.")
			return
		}
		table(w, "ID\tNAME\tSOURCES\tARCHIVED\tUPDATED", func(tw *tabwriter.Writer) {
			for _, n := range notebooks {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", n.ID, n.Name, len(n.Sources), n.Archived, n.Updated.Format("2006-01-02 15:04"))
			}
		})
	})
}

// WriteNotebook writes a single notebook with its source summaries.
func WriteNotebook(w io.Writer, n models.Notebook, format OutputFormat) error {
	return write(w, format, n, func(w io.Writer) {
		fmt.Fprintf(w, "ID:       %s\n", n.ID)
		fmt.Fprintf(w, "Name:     %s\n", n.Name)
		if n.Description != "" {
			fmt.Fprintf(w, "About:    %s\n", n.Description)
		}
		fmt.Fprintf(w, "Archived: %t\n", n.Archived)
		fmt.Fprintf(w, "Sources:  %d\n", len(n.Sources))
		for _, s := range n.Sources {
			fmt.Fprintf(w, "  - %s  %s (%s)\n", s.ID, s.Title, s.Status)
		}
		if len(n.Notes) > 0 {
			fmt.Fprintf(w, "Notes:    %d\n", len(n.Notes))
			for _, note := range n.Notes {
				fmt.Fprintf(w, "  - %s  %s\n", note.ID, note.Title)
			}
		}
	})
}

// WriteSources writes a source list.
func WriteSources(w io.Writer, sources []models.Source, format OutputFormat) error {
	return write(w, format, sources, func(w io.Writer) {
		if len(sources) == 0 {
			fmt.Fprintln(w, "No sources.")
			return
		}
		table(w, "ID\tTITLE\tTYPE\tSTATUS\tCHUNKS", func(tw *tabwriter.Writer) {
			for _, s := range sources {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.ID, utils.Truncate(s.Title, 48), s.Type, s.Status, s.EmbeddedChunks)
			}
		})
	})
}

// WriteSource writes one source with a preview of its text.
func WriteSource(w io.Writer, s models.Source, format OutputFormat) error {
	return write(w, format, s, func(w io.Writer) {
		fmt.Fprintf(w, "ID:       %s\n", s.ID)
		fmt.Fprintf(w, "Notebook: %s\n", s.NotebookID)
		fmt.Fprintf(w, "Title:    %s\n", s.Title)
		fmt.Fprintf(w, "Type:     %s\n", s.Type)
		fmt.Fprintf(w, "Status:   %s\n", s.Status)
		if s.FullText != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(s.FullText, previewLen))
		}
	})
}

// WriteNotes writes a note list.
func WriteNotes(w io.Writer, notes []models.Note, format OutputFormat) error {
	return write(w, format, notes, func(w io.Writer) {
		if len(notes) == 0 {
			fmt.Fprintln(w, "No notes.")
			return
		}
		table(w, "ID\tTITLE\tTYPE\tUPDATED", func(tw *tabwriter.Writer) {
			for _, n := range notes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, utils.Truncate(n.Title, 48), n.Type, n.Updated.Format("2006-01-02 15:04"))
			}
		})
	})
}

// WriteNote writes one note in full.
func WriteNote(w io.Writer, n models.Note, format OutputFormat) error {
	return write(w, format, n, func(w io.Writer) {
		fmt.Fprintf(w, "ID:       %s\n", n.ID)
		if n.NotebookID != "" {
			fmt.Fprintf(w, "Notebook: %s\n", n.NotebookID)
		}
		fmt.Fprintf(w, "Title:    %s\n", n.Title)
		fmt.Fprintf(w, "Type:     %s\n", n.Type)
		if n.Content != "" {
			fmt.Fprintf(w, "\n%s\n", n.Content)
		}
	})
}

// WriteHits writes source search results.
func WriteHits(w io.Writer, hits []models.SourceHit, format OutputFormat) error {
	return write(w, format, hits, func(w io.Writer) {
		fmt.Fprintf(w, "Found %d sources\n", len(hits))
		for i, h := range hits {
			fmt.Fprintf(w, "%d. %s  %s (score %.4f)\n", i+1, h.SourceID, h.Title, h.Score)
		}
	})
}

// WriteSessions writes chat sessions without their transcripts.
func WriteSessions(w io.Writer, sessions []models.ChatSession, format OutputFormat) error {
	return write(w, format, sessions, func(w io.Writer) {
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No chat sessions.")
			return
		}
		table(w, "ID\tTITLE\tMESSAGES\tUPDATED", func(tw *tabwriter.Writer) {
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, utils.Truncate(s.Title, 40), len(s.Messages), s.Updated.Format("2006-01-02 15:04"))
			}
		})
	})
}

// WriteSession writes a session transcript.
func WriteSession(w io.Writer, s models.ChatSession, format OutputFormat) error {
	return write(w, format, s, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n\n", s.ID, s.Title)
		for _, m := range s.Messages {
			fmt.Fprintf(w, "%s: %s\n", m.Role, m.Content)
		}
	})
}

// WriteReply writes an assistant reply.
func WriteReply(w io.Writer, r models.ChatReply, format OutputFormat) error {
	return write(w, format, r, func(w io.Writer) {
		fmt.Fprintf(w, "%s\n\n(session %s)\n", r.Content, r.SessionID)
	})
}
