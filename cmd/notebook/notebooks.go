package main

import (
	"context"
	"fmt"
	"io"

	"github.com/varunkrunch/opennotebook/internal/cli"
	"github.com/varunkrunch/opennotebook/internal/models"
)

func usage(stderr io.Writer, lines ...string) error {
	for _, l := range lines {
		fmt.Fprintln(stderr, l)
	}
	return errUsage
}

func runNotebooks(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return usage(stderr, "Usage: notebook notebooks <list|show|create|rename|delete|archive|unarchive> [args]")
	}
	sub, rest := args[0], args[1:]
	flags := newClientFlags("notebooks "+sub, stderr)
	description := flags.fs.String("description", "", "notebook description (create)")
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
		list, err := s.ws.Notebooks(ctx)
		if err != nil {
			return err
		}
		return cli.WriteNotebooks(stdout, list, s.format)
	case "show":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notebooks show <id|name>")
		}
		n, err := s.notebook(ctx, pos[0])
		if err != nil {
			return err
		}
		return cli.WriteNotebook(stdout, n, s.format)
	case "create":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notebooks create [--description text] <name>")
		}
		// Load the list first so name collisions are caught before the request.
		if _, err := s.ws.Notebooks(ctx); err != nil {
			return err
		}
		n, err := s.ws.CreateNotebook(ctx, models.NotebookInput{Name: pos[0], Description: *description})
		if err != nil {
			return err
		}
		return cli.WriteNotebook(stdout, n, s.format)
	case "rename":
		if len(pos) != 2 {
			return usage(stderr, "Usage: notebook notebooks rename <id|name> <new name>")
		}
		n, err := s.notebook(ctx, pos[0])
		if err != nil {
			return err
		}
		if _, err := s.ws.Notebooks(ctx); err != nil {
			return err
		}
		n, err = s.ws.RenameNotebook(ctx, n.ID, pos[1])
		if err != nil {
			return err
		}
		return cli.WriteNotebook(stdout, n, s.format)
	case "archive", "unarchive":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notebooks "+sub+" <id|name>")
		}
		n, err := s.notebook(ctx, pos[0])
		if err != nil {
			return err
		}
		n, err = s.ws.SetArchived(ctx, n.ID, sub == "archive")
		if err != nil {
			return err
		}
		return cli.WriteNotebook(stdout, n, s.format)
	case "delete":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook notebooks delete <id|name>")
		}
		n, err := s.notebook(ctx, pos[0])
		if err != nil {
			return err
		}
		return s.ws.DeleteNotebook(ctx, n.ID)
	}
	return usage(stderr, "Unknown notebooks subcommand: "+sub)
}
