package main

import (
	"context"
	"io"
	"strings"

	"github.com/varunkrunch/opennotebook/internal/cli"
)

func runChat(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return usage(stderr, "Usage: notebook chat <send|sessions|show|delete> [args]")
	}
	sub, rest := args[0], args[1:]
	flags := newClientFlags("chat "+sub, stderr)
	sessionID := flags.fs.String("session", "", "chat session id (send); empty starts a new session")
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
	case "send":
		if len(pos) < 2 {
			return usage(stderr, "Usage: notebook chat send [--session id] <id|name> <message>")
		}
		n, err := s.notebook(ctx, pos[0])
		if err != nil {
			return err
		}
		reply, err := s.ws.SendMessage(ctx, n.ID, *sessionID, strings.Join(pos[1:], " "))
		if err != nil {
			return err
		}
		return cli.WriteReply(stdout, reply, s.format)
	case "sessions":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook chat sessions <id|name>")
		}
		n, err := s.notebook(ctx, pos[0])
		if err != nil {
			return err
		}
		sessions, err := s.ws.ChatSessions(ctx, n.ID)
		if err != nil {
			return err
		}
		return cli.WriteSessions(stdout, sessions, s.format)
	case "show":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook chat show <session id>")
		}
		session, err := s.ws.ChatSession(ctx, pos[0])
		if err != nil {
			return err
		}
		return cli.WriteSession(stdout, session, s.format)
	case "delete":
		if len(pos) != 1 {
			return usage(stderr, "Usage: notebook chat delete <session id>")
		}
		return s.ws.DeleteChatSession(ctx, pos[0])
	}
	return usage(stderr, "Unknown chat subcommand: "+sub)
}
