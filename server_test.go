package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gamma-omg/rag-chat/backends"
	"github.com/gamma-omg/rag-chat/readers"
)

func newTestTools(t *testing.T, backend backends.Backend) (*ragTools, *DocRegistry) {
	reg, store := newTestRegistry(t, NewChunkifier(40, 0))
	ranker := NewRanker(store, RankingConfig{MinScore: 0.1, ApplyThreshold: true}, discardLogger())

	return &ragTools{
		log:       discardLogger(),
		ranker:    ranker,
		docs:      reg,
		assistant: NewAssistant(ranker, backend, ChatConfig{}, 2, discardLogger()),
		maxChunks: 2,
	}, reg
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func jsonLines(t *testing.T, text string) []map[string]any {
	var res []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		res = append(res, m)
	}
	return res
}

func Test_RagTools_IngestSearchRemove(t *testing.T) {
	tools, reg := newTestTools(t, new(mockBackend))
	ctx := context.Background()

	res, err := tools.ingest(ctx, toolRequest("ingest_document", map[string]any{
		"path": filepath.Join("readers", "testdata", "test.txt"),
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "ingested test.txt as ")

	res, err = tools.search(ctx, toolRequest("search_documents", map[string]any{"query": "hello"}))
	require.NoError(t, err)
	found := jsonLines(t, resultText(t, res))
	require.Len(t, found, 1)
	assert.Equal(t, "test.txt", found[0]["file"])
	assert.Equal(t, "hello world", found[0]["text"])

	res, err = tools.list(ctx, toolRequest("list_documents", nil))
	require.NoError(t, err)
	listed := jsonLines(t, resultText(t, res))
	require.Len(t, listed, 1)
	assert.Equal(t, "test.txt", listed[0]["filename"])
	assert.EqualValues(t, 1, listed[0]["chunks"])

	id := listed[0]["id"].(string)
	res, err = tools.remove(ctx, toolRequest("remove_document", map[string]any{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, "removed "+id, resultText(t, res))

	docs, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func Test_RagTools_SearchMaxChunks(t *testing.T) {
	tools, reg := newTestTools(t, new(mockBackend))
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := reg.Ingest(ctx, testFile(name, "Cats are mammals."))
		require.NoError(t, err)
	}

	res, err := tools.search(ctx, toolRequest("search_documents", map[string]any{"query": "cats"}))
	require.NoError(t, err)
	assert.Len(t, jsonLines(t, resultText(t, res)), 2)

	res, err = tools.search(ctx, toolRequest("search_documents", map[string]any{"query": "cats", "max_chunks": float64(3)}))
	require.NoError(t, err)
	assert.Len(t, jsonLines(t, resultText(t, res)), 3)
}

func Test_RagTools_Errors(t *testing.T) {
	tools, _ := newTestTools(t, new(mockBackend))
	ctx := context.Background()

	var cases = []struct {
		call func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]any
	}{
		{call: tools.search, args: map[string]any{}},
		{call: tools.ingest, args: map[string]any{}},
		{call: tools.ingest, args: map[string]any{"path": "readers/testdata/missing.txt"}},
		{call: tools.remove, args: map[string]any{}},
		{call: tools.chat, args: map[string]any{}},
	}

	for _, c := range cases {
		res, err := c.call(ctx, toolRequest("tool", c.args))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	}
}

func Test_RagTools_Chat(t *testing.T) {
	backend := new(mockBackend)
	backend.On("SendMessage", mock.Anything, mock.Anything, "Cats are mammals").Return("They are.", nil).Once()

	tools, reg := newTestTools(t, backend)
	ctx := context.Background()

	_, err := reg.Ingest(ctx, testFile("cats.txt", "Cats are mammals."))
	require.NoError(t, err)

	res, err := tools.chat(ctx, toolRequest("chat", map[string]any{"message": "are cats mammals"}))
	require.NoError(t, err)
	assert.Equal(t, "They are.", resultText(t, res))
	backend.AssertExpectations(t)
}

func Test_NewRagServer(t *testing.T) {
	tools, reg := newTestTools(t, new(mockBackend))
	srv := NewRagServer(tools.ranker, reg, tools.assistant, 2, discardLogger())
	assert.NotNil(t, srv)
}

func testFile(name, content string) readers.File {
	return readers.File{Name: name, Data: []byte(content)}
}
