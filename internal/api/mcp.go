package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/frontdesk/internal/knowledge"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Query(ctx context.Context, text string, k int) ([]knowledge.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Workflow  Workflow
	Retriever MCPRetriever
}

// NewMCPServer creates an MCP server exposing the supervisor tools:
// searching the knowledge base, listing escalated questions, and
// resolving them.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"frontdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("frontdesk: AI receptionist with human escalation. Tools for supervisors to review and resolve escalated questions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Semantically search the receptionist knowledge base."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("list_pending",
			mcp.WithDescription("List escalated questions awaiting a supervisor answer."),
		),
		mcpListPending(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_request",
			mcp.WithDescription("Answer an escalated question. The answer is refined, taught to the knowledge base, and delivered to the asking user."),
			mcp.WithNumber("request_id", mcp.Description("Id of the pending request"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The supervisor's answer"), mcp.Required()),
		),
		mcpResolveRequest(deps),
	)

	return s
}

func mcpSearchKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Retriever.Query(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type docResult struct {
			ID       int64   `json:"id"`
			Text     string  `json:"text"`
			Distance float32 `json:"distance"`
		}
		out := make([]docResult, len(results))
		for i, r := range results {
			out[i] = docResult{ID: r.ID, Text: r.Text, Distance: r.Distance}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListPending(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending, err := deps.Workflow.ListPending()
		if err != nil {
			return mcpError(fmt.Sprintf("listing pending requests: %v", err)), nil
		}
		if len(pending) == 0 {
			return mcpText("[]"), nil
		}

		type pendingResult struct {
			RequestID int64  `json:"request_id"`
			UserID    string `json:"user_id"`
			Question  string `json:"question"`
		}
		out := make([]pendingResult, len(pending))
		for i, p := range pending {
			out[i] = pendingResult{RequestID: p.ID, UserID: p.UserID, Question: p.Question}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolveRequest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("request_id")
		if err != nil {
			return mcpError("request_id is required"), nil
		}
		rawAnswer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		refined, err := deps.Workflow.HandleSupervisorResponse(ctx, int64(id), rawAnswer)
		if err != nil {
			return mcpError(fmt.Sprintf("resolving request %d: %v", id, err)), nil
		}
		return mcpText(fmt.Sprintf("Request %d resolved. Refined answer: %s", id, refined)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
