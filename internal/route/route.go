// Package route maps client paths to views. Notebooks are addressed by their
// URL-encoded name; every unknown path redirects to the root.
package route

import (
	"net/url"
	"strings"
)

// View is the screen a path resolves to.
type View int

const (
	Root View = iota
	NotebookView
)

func (v View) String() string {
	if v == NotebookView {
		return "notebook"
	}
	return "root"
}

// Route is a resolved path. Redirect is set when the requested path was not
// recognized and the root was substituted.
type Route struct {
	View     View
	Notebook string
	Redirect bool
}

const notebooksPrefix = "/notebooks/"

// NotebookPath returns the path of the notebook named name.
func NotebookPath(name string) string {
	return notebooksPrefix + url.PathEscape(name)
}

// Resolve maps path to a route.
func Resolve(path string) Route {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return Route{View: Root}
	}
	if strings.HasPrefix(path, notebooksPrefix) {
		raw := strings.TrimSuffix(strings.TrimPrefix(path, notebooksPrefix), "/")
		if raw != "" && !strings.Contains(raw, "/") {
			name, err := url.PathUnescape(raw)
			if err == nil && strings.TrimSpace(name) != "" {
				return Route{View: NotebookView, Notebook: name}
			}
		}
	}
	return Route{View: Root, Redirect: true}
}

// Path returns the canonical path of r.
func (r Route) Path() string {
	if r.View == NotebookView {
		return NotebookPath(r.Notebook)
	}
	return "/"
}
