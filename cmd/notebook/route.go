package main

import (
	"context"
	"fmt"
	"io"

	"github.com/varunkrunch/opennotebook/internal/cli"
	"github.com/varunkrunch/opennotebook/internal/route"
)

func runRoute(args []string, stdout, stderr io.Writer) error {
	flags := newClientFlags("route", stderr)
	resolve := flags.fs.Bool("resolve", false, "load the routed notebook from the server")
	if err := flags.parse(args); err != nil {
		return err
	}
	pos := flags.fs.Args()
	if len(pos) != 1 {
		return usage(stderr, "Usage: notebook route [--resolve] <path>")
	}
	r := route.Resolve(pos[0])
	fmt.Fprintf(stdout, "view: %s\npath: %s\n", r.View, r.Path())
	if r.Redirect {
		fmt.Fprintln(stdout, "redirect: true")
	}
	if r.View != route.NotebookView || !*resolve {
		return nil
	}
	s, err := flags.open(stderr)
	if err != nil {
		return err
	}
	defer s.close()
	n, err := s.ws.NotebookByName(context.Background(), r.Notebook)
	if err != nil {
		return err
	}
	return cli.WriteNotebook(stdout, n, s.format)
}
