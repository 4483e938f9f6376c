package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/cli"
	"github.com/varunkrunch/opennotebook/internal/models"
)

func runSources(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return usage(stderr, "Usage: notebook sources <list|show|add|delete|search> [args]")
	}
	sub, rest := args[0], args[1:]
	flags := newClientFlags("sources "+sub, stderr)
	typ := flags.fs.String("type", "", "source type for add: text, link or upload (default: upload when a file is given)")
	title := flags.fs.String("title", "", "source title (add)")
	content := flags.fs.String("content", "", "text content (add --type text)")
	link := flags.fs.String("url", "", "link (add --type link)")
	transformations := flags.fs.String("transformations", "", "comma-separated transformations to apply (add)")
	embed := flags.fs.Bool("embed", true, "embed the source for search (add)")
	if err := flags.parse(rest); err != nil {
		return err
	}
	s, err := flags.open(stderr)
	if err != nil {
		return err
	}
	defer s.close()
	ctx := context.Background()
	pos := flags.fs.Args()

	switch sub {
	case "list":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook sources list <id|name>")
		}
		var list []models.Source
		if strings.HasPrefix(pos[0], "notebook:") {
			list, err = s.ws.Sources(ctx, pos[0])
		} else {
			list, err = s.ws.SourcesByName(ctx, pos[0])
		}
		if err != nil {
			return err
		}
		return cli.WriteSources(stdout, list, s.format)
	case "show":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook sources show <source id>")
		}
		src, err := s.ws.Source(ctx, pos[0])
		if err != nil {
			return err
		}
		return cli.WriteSource(stdout, src, s.format)
	case "add":
		if len(pos) < 1 || len(pos) > 2 {
			return usage(stderr, "Usage: notebook sources add [flags] <id|name> [file]")
		}
		in := models.SourceInput{Title: *title, Content: *content, URL: *link, Embed: *embed}
		if *transformations != "" {
			in.ApplyTransformations = strings.Split(*transformations, ",")
		}
		switch {
		case *typ != "":
			t, ok := models.ParseSourceType(*typ)
			if !ok {
				return fmt.Errorf("unknown source type %q", *typ)
			}
			in.Type = t
		case len(pos) == 2:
			in.Type = models.SourceUpload
		case *link != "":
			in.Type = models.SourceLink
		default:
			in.Type = models.SourceText
		}
		if len(pos) == 2 {
			data, err := os.ReadFile(pos[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", pos[1], err)
			}
			in.FileName = filepath.Base(pos[1])
			in.File = data
		}
		ref := models.ByName(pos[0])
		if strings.HasPrefix(pos[0], "notebook:") {
			ref = models.ByID(pos[0])
		}
		src, err := s.ws.CreateSource(ctx, ref, in)
		if err != nil {
			return err
		}
		return cli.WriteSource(stdout, src, s.format)
	case "delete":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook sources delete <source id>")
		}
		return s.ws.DeleteSource(ctx, pos[0])
	case "search":
		if len(pos) < 2 {
			return usage(stderr, "Usage: notebook sources search <id|name> <query>")
		}
		n, err := s.notebook(ctx, pos[0])
		if err != nil {
			return err
		}
		hits, err := s.ws.SearchSources(ctx, n.ID, strings.Join(pos[1:], " "))
		if err != nil {
			return err
		}
		return cli.WriteHits(stdout, hits, s.format)
	}
	return usage(stderr, "Unknown sources subcommand: "+sub)
}
