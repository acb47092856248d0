// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes retrieval and answering as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/noterag/pkg/rag"
)

// Tool names.
const (
	ToolSearch = "rag_search"
	ToolAnswer = "rag_answer"
)

// Server wraps the mcp-go server around an orchestrator.
type Server struct {
	mcpServer *server.MCPServer
	orch      *rag.Orchestrator
}

// NewServer creates an MCP server with the rag tools registered.
func NewServer(name, version string, orch *rag.Orchestrator) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		orch:      orch,
	}

	s.mcpServer.AddTool(mcp.NewTool(ToolSearch,
		mcp.WithDescription("Return the note passages most similar to a query"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the notes")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("k", mcp.Description("Number of passages, defaults to the configured top k")),
	), s.search)

	s.mcpServer.AddTool(mcp.NewTool(ToolAnswer,
		mcp.WithDescription("Answer a question from the user's notes"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the notes")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
	), s.answer)

	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, query, errResult := requireQuery(req)
	if errResult != nil {
		return errResult, nil
	}
	k := req.GetInt("k", s.orch.TopK())
	if k < 1 {
		return mcp.NewToolResultError("k must be >= 1"), nil
	}

	hits, err := s.orch.Search(ctx, userID, query, k)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no passages found"), nil
	}

	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (score %.3f)\n%s", i+1, h.Metadata.Title, h.Score, h.Text)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) answer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, query, errResult := requireQuery(req)
	if errResult != nil {
		return errResult, nil
	}
	answer, err := s.orch.Answer(ctx, userID, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(answer), nil
}

func requireQuery(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	userID, err := req.RequireString("user_id")
	if err != nil || strings.TrimSpace(userID) == "" {
		return "", "", mcp.NewToolResultError("user_id is required")
	}
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return "", "", mcp.NewToolResultError("query is required")
	}
	return userID, query, nil
}
