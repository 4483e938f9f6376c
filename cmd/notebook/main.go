// Package main is the notebook CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/api"
	"github.com/varunkrunch/opennotebook/internal/cli"
	"github.com/varunkrunch/opennotebook/internal/config"
	"github.com/varunkrunch/opennotebook/internal/models"
	"github.com/varunkrunch/opennotebook/internal/notify"
	"github.com/varunkrunch/opennotebook/internal/workspace"
	"github.com/varunkrunch/opennotebook/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/opennotebook/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When neither exists, defaults are used. Returns the config and the path that was
// actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front of the slice so that flag.Parse() sees
// them. Go's flag package stops at the first non-flag argument, so
// "notebook sources add Research notes.md --title x" would otherwise leave
// --title unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "serve", "server":
		err = runServe(rest, stderr)
	case "notebooks":
		err = runNotebooks(rest, stdout, stderr)
	case "sources":
		err = runSources(rest, stdout, stderr)
	case "notes":
		err = runNotes(rest, stdout, stderr)
	case "chat":
		err = runChat(rest, stdout, stderr)
	case "watch":
		err = runWatch(rest, stderr)
	case "route":
		err = runRoute(rest, stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "notebook version %s\n", version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

var errUsage = fmt.Errorf("invalid usage")

// clientFlags are the flags shared by every command that talks to the API.
type clientFlags struct {
	fs         *flag.FlagSet
	configPath *string
	server     *string
	output     *string
	debug      *bool
}

func newClientFlags(name string, stderr io.Writer) *clientFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return &clientFlags{
		fs:         fs,
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		server:     fs.String("server", "", "API base URL (default from config)"),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

func (c *clientFlags) parse(args []string) error {
	return c.fs.Parse(argsReorder(args))
}

// session is a configured workspace for one command invocation.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	ws     *workspace.Workspace
	format cli.OutputFormat
}

func (c *clientFlags) open(stderr io.Writer) (*session, error) {
	format, err := cli.ParseFormat(*c.output)
	if err != nil {
		return nil, err
	}
	cfg, _, err := loadConfig(*c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *c.server != "" {
		cfg.API.BaseURL = strings.TrimRight(*c.server, "/")
	}
	logger, err := utils.NewLogger(cfg.Debug || *c.debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if !cfg.Debug && !*c.debug {
		logger = zap.NewNop()
	}
	client := api.NewClient(cfg.API.BaseURL, api.WithLogger(logger.Named("api")))
	ws := workspace.New(client,
		workspace.WithLogger(logger),
		workspace.WithNotifier(notify.Multi(notify.NewWriterNotifier(stderr), notify.NewLogNotifier(logger))),
		workspace.WithTimeouts(cfg.API.FetchTimeout, cfg.API.MutationTimeout),
		workspace.WithStaleTime(cfg.Cache.StaleTime),
	)
	return &session{cfg: cfg, logger: logger, ws: ws, format: format}, nil
}

func (s *session) close() {
	s.ws.Stop()
	_ = s.logger.Sync()
}

// notebook resolves a notebook id ("notebook:...") or name.
func (s *session) notebook(ctx context.Context, ref string) (models.Notebook, error) {
	if strings.HasPrefix(ref, "notebook:") {
		return s.ws.Notebook(ctx, ref)
	}
	return s.ws.NotebookByName(ctx, ref)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `notebook - Notebook client with an optimistic local cache

Usage:
  notebook serve [flags]                                Start the API dev server
  notebook notebooks list|show|create|rename|delete|archive|unarchive
  notebook sources list|show|add|delete|search
  notebook notes list|show|add|edit|delete
  notebook chat send|sessions|show|delete
  notebook watch [flags]                                Upload files from watched directories
  notebook route [--resolve] <path>                     Resolve a UI path to its view
  notebook version                                      Show version
  notebook help                                         Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/opennotebook/config.yaml)
  --server string    API base URL (default from config: http://localhost:5055)
  --output string    Output format: text or json (default: text)
  --debug            Enable debug logging

Notebooks are addressed by id (notebook:...) or by name.

Examples:
  notebook serve
  notebook notebooks create Research --description "Thesis material"
  notebook notebooks rename Research Thesis
  notebook sources add Thesis --type text --content "Rivers of Europe"
  notebook sources add Thesis --type upload ./paper.pdf
  notebook sources search Thesis danube
  notebook notes add Thesis --title "Open questions" --file ./questions.md
  notebook notes edit "Open questions" --by-title --content "Answered"
  notebook chat send Thesis "what do my sources say about rivers?"
  notebook chat send --session chat_session:abc Thesis "and lakes?"
  notebook route /notebooks/Thesis`)
}
