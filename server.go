package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gamma-omg/rag-chat/backends"
	"github.com/gamma-omg/rag-chat/docstore"
)

type docRanker interface {
	Rank(ctx context.Context, query string, k int) []docstore.ScoredChunk
}

type docManager interface {
	IngestPath(ctx context.Context, path string) (docstore.Document, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]docstore.Document, error)
}

type replier interface {
	Reply(ctx context.Context, history []backends.Message, message string) (string, error)
}

type ragTools struct {
	log       *slog.Logger
	ranker    docRanker
	docs      docManager
	assistant replier
	maxChunks int
}

func NewRagServer(ranker docRanker, docs docManager, assistant replier, maxChunks int, log *slog.Logger) *server.MCPServer {
	t := &ragTools{
		log:       log,
		ranker:    ranker,
		docs:      docs,
		assistant: assistant,
		maxChunks: maxChunks,
	}

	srv := server.NewMCPServer("rag-chat", "0.1.0", server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Find the document chunks most relevant to a query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("max_chunks",
			mcp.Description("Maximum number of chunks to return"),
			mcp.DefaultNumber(float64(maxChunks)),
		),
	), t.search)

	srv.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the uploaded documents"),
	), t.list)

	srv.AddTool(mcp.NewTool("ingest_document",
		mcp.WithDescription("Upload a .txt, .md, .csv, .json, .docx or .odt file from the server's disk"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the file to ingest"),
		),
	), t.ingest)

	srv.AddTool(mcp.NewTool("remove_document",
		mcp.WithDescription("Remove an uploaded document by id"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Document id"),
		),
	), t.remove)

	srv.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Ask the assistant a question, answered with context from the uploaded documents"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Question for the assistant"),
		),
	), t.chat)

	return srv
}

func (t *ragTools) search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	k := request.GetInt("max_chunks", t.maxChunks)

	var response strings.Builder
	for _, r := range t.ranker.Rank(ctx, q, k) {
		raw, err := json.Marshal(struct {
			Score      float64 `json:"score"`
			File       string  `json:"file"`
			DocumentID string  `json:"document_id"`
			Text       string  `json:"text"`
		}{
			Score:      r.Score,
			File:       r.Filename,
			DocumentID: r.DocumentID,
			Text:       r.Chunk,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		response.Write(raw)
		response.WriteByte('\n')
	}

	return mcp.NewToolResultText(response.String()), nil
}

func (t *ragTools) list(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := t.docs.List(ctx)
	if err != nil {
		t.log.Warn("listing documents from degraded store", "error", err)
	}

	var response strings.Builder
	for _, d := range docs {
		raw, err := json.Marshal(struct {
			ID         string    `json:"id"`
			Filename   string    `json:"filename"`
			UploadedAt time.Time `json:"uploadedAt"`
			Chunks     int       `json:"chunks"`
		}{
			ID:         d.ID,
			Filename:   d.Filename,
			UploadedAt: d.UploadedAt,
			Chunks:     len(d.Chunks),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		response.Write(raw)
		response.WriteByte('\n')
	}

	return mcp.NewToolResultText(response.String()), nil
}

func (t *ragTools) ingest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := t.docs.IngestPath(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("ingested %s as %s (%d chunks)", doc.Filename, doc.ID, len(doc.Chunks))), nil
}

func (t *ragTools) remove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := t.docs.Remove(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("removed %s", id)), nil
}

func (t *ragTools) chat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.assistant.Reply(ctx, nil, msg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(res), nil
}
