package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gamma-omg/rag-chat/backends"
)

type chunkFinder interface {
	FindRelevantChunks(ctx context.Context, query string, maxChunks int) []string
}

// Assistant answers a user message with the help of the most relevant
// document chunks.
type Assistant struct {
	log       *slog.Logger
	chunks    chunkFinder
	backend   backends.Backend
	chat      ChatConfig
	maxChunks int
}

func NewAssistant(chunks chunkFinder, backend backends.Backend, chat ChatConfig, maxChunks int, log *slog.Logger) *Assistant {
	return &Assistant{
		log:       log,
		chunks:    chunks,
		backend:   backend,
		chat:      chat,
		maxChunks: maxChunks,
	}
}

// Reply sends history plus message to the backend. history holds earlier
// user and assistant turns only.
func (a *Assistant) Reply(ctx context.Context, history []backends.Message, message string) (string, error) {
	found := a.chunks.FindRelevantChunks(ctx, message, a.maxChunks)
	if len(found) == 0 && a.chat.RequireContext {
		a.log.Info("no relevant context, skipping backend", "query", message)
		return a.chat.FallbackMessage, nil
	}

	msgs := make([]backends.Message, 0, len(history)+2)
	if a.chat.SystemPrompt != "" {
		msgs = append(msgs, backends.Message{Role: backends.RoleSystem, Content: a.chat.SystemPrompt})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, backends.Message{Role: backends.RoleUser, Content: message})

	a.log.Debug("sending message", "backend", a.backend.Name(), "chunks", len(found))

	res, err := a.backend.SendMessage(ctx, msgs, strings.Join(found, "\n\n"))
	if err != nil {
		return "", fmt.Errorf("backend %s failed: %w", a.backend.Name(), err)
	}

	return res, nil
}
