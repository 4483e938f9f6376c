package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/cli"
	"github.com/varunkrunch/opennotebook/internal/models"
)

func runNotes(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return usage(stderr, "Usage: notebook notes <list|show|add|edit|delete> [args]")
	}
	sub, rest := args[0], args[1:]
	flags := newClientFlags("notes "+sub, stderr)
	title := flags.fs.String("title", "", "note title (add, edit)")
	content := flags.fs.String("content", "", "note content (add, edit)")
	file := flags.fs.String("file", "", "read the note content from a file (add, edit)")
	typ := flags.fs.String("type", "", "note type: human or ai (add, edit)")
	byTitle := flags.fs.Bool("by-title", false, "address the note by title instead of id (show, edit, delete)")
	if err := flags.parse(rest); err != nil {
		return err
	}
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", *file, err)
		}
		*content = string(data)
	}
	s, err := flags.open(stderr)
	if err != nil {
		return err
	}
	defer s.close()
	ctx := context.Background()
	pos := flags.fs.Args()

	noteID := func(ref string) (string, error) {
		if !*byTitle {
			return ref, nil
		}
		n, err := s.ws.NoteByTitle(ctx, ref)
		if err != nil {
			return "", err
		}
		return n.ID, nil
	}

	switch sub {
	case "list":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notes list <id|name>")
		}
		var list []models.Note
		if strings.HasPrefix(pos[0], "notebook:") {
			list, err = s.ws.Notes(ctx, pos[0])
		} else {
			list, err = s.ws.NotesByName(ctx, pos[0])
		}
		if err != nil {
			return err
		}
		return cli.WriteNotes(stdout, list, s.format)
	case "show":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notes show [--by-title] <note id|title>")
		}
		id, err := noteID(pos[0])
		if err != nil {
			return err
		}
		n, err := s.ws.Note(ctx, id)
		if err != nil {
			return err
		}
		return cli.WriteNote(stdout, n, s.format)
	case "add":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notes add --title <title> [--content text|--file path] <id|name>")
		}
		ref := models.ByName(pos[0])
		if strings.HasPrefix(pos[0], "notebook:") {
			ref = models.ByID(pos[0])
		}
		n, err := s.ws.CreateNote(ctx, ref, models.NoteInput{Title: *title, Content: *content, Type: models.NoteType(*typ)})
		if err != nil {
			return err
		}
		return cli.WriteNote(stdout, n, s.format)
	case "edit":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notes edit [--by-title] [--title t] [--content text|--file path] <note id|title>")
		}
		var patch models.NotePatch
		flags.fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "title":
				patch.Title = title
			case "content", "file":
				patch.Content = content
			case "type":
				t := models.NoteType(*typ)
				patch.Type = &t
			}
		})
		id, err := noteID(pos[0])
		if err != nil {
			return err
		}
		n, err := s.ws.UpdateNote(ctx, id, patch)
		if err != nil {
			return err
		}
		return cli.WriteNote(stdout, n, s.format)
	case "delete":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notes delete [--by-title] <note id|title>")
		}
		id, err := noteID(pos[0])
		if err != nil {
			return err
		}
		return s.ws.DeleteNote(ctx, id)
	}
	return usage(stderr, "Unknown notes subcommand: "+sub)
}
