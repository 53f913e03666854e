package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/idiolect/internal/storage"
	"github.com/kalambet/idiolect/internal/style"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Styles  *style.Manager
	Version string
}

// NewMCPServer creates an MCP server with the idiolect tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"idiolect",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("idiolect learns how a user writes. Read a style summary before drafting a reply in their voice."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("style_summary",
			mcp.WithDescription("Return the ranked speaking-style summary for a style key as JSON."),
			mcp.WithString("style_key", mcp.Description("Style key (persona or user id)"), mcp.Required()),
		),
		mcpStyleSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("style_prompt",
			mcp.WithDescription("Return the speaking-style summary as a short text block for a system prompt."),
			mcp.WithString("style_key", mcp.Description("Style key (persona or user id)"), mcp.Required()),
		),
		mcpStylePrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("learn_message",
			mcp.WithDescription("Log a message written by the user and learn from its style."),
			mcp.WithString("style_key", mcp.Description("Style key (persona or user id)"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The message text"), mcp.Required()),
		),
		mcpLearnMessage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"style://keys",
			"Style Keys",
			mcp.WithResourceDescription("Every style key with a learned profile"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceKeys(deps),
	)

	return s
}

func mcpStyleSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("style_key")
		if err != nil {
			return mcpError("style_key is required"), nil
		}

		s, err := deps.Styles.GetProfileSummary(key)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load style: %v", err)), nil
		}

		b, err := json.Marshal(s)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStylePrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("style_key")
		if err != nil {
			return mcpError("style_key is required"), nil
		}

		s, err := deps.Styles.GetProfileSummary(key)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load style: %v", err)), nil
		}
		return mcpText(s.Prompt()), nil
	}
}

func mcpLearnMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("style_key")
		if err != nil {
			return mcpError("style_key is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		resp, err := logAndLearn(deps.Store, deps.Styles, MessageRequest{
			StyleKey: key,
			Role:     storage.RoleUser,
			Content:  content,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save message: %v", err)), nil
		}
		if !resp.Learned {
			return mcpError(fmt.Sprintf("message %s saved but the style profile could not be updated", resp.ID)), nil
		}
		return mcpText(fmt.Sprintf("Learned message %s (%d messages for %s)", resp.ID, resp.TotalMessages, key)), nil
	}
}

func mcpResourceKeys(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		keys, err := deps.Styles.ListKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to list style keys: %w", err)
		}
		if keys == nil {
			keys = []string{}
		}

		b, err := json.Marshal(keys)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal style keys: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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
