package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/bloodlens/internal/analysis"
	"github.com/kalambet/bloodlens/internal/report"
)

// NewMCPServer creates an MCP server exposing blood report analysis and
// report history.
func NewMCPServer(deps Deps) *server.MCPServer {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := server.NewMCPServer(
		"bloodlens",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("bloodlens analyses blood test reports (PDF or text) with a team of medical, nutrition and exercise specialists. Output is educational, not medical advice."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_blood_report",
			mcp.WithDescription("Analyse a blood test report and return a Markdown report with medical, nutrition and exercise sections."),
			mcp.WithString("content", mcp.Description("Base64-encoded report file (PDF or plain text)"), mcp.Required()),
			mcp.WithString("filename", mcp.Description("Original file name, for the report header")),
			mcp.WithString("query", mcp.Description("Question about the report (optional)")),
			mcp.WithString("analysis_type",
				mcp.Description("comprehensive (default) or medical_only"),
				mcp.Enum(string(analysis.ModeComprehensive), string(analysis.ModeMedicalOnly)),
			),
		),
		mcpAnalyze(deps),
	)

	s.AddTool(
		mcp.NewTool("list_reports",
			mcp.WithDescription("List previously generated reports, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of reports (default 10)")),
		),
		mcpListReports(deps),
	)

	s.AddTool(
		mcp.NewTool("get_report",
			mcp.WithDescription("Fetch a stored report as Markdown."),
			mcp.WithString("id", mcp.Description("Report ID"), mcp.Required()),
		),
		mcpGetReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"reports://recent",
			"Recent Reports",
			mcp.WithResourceDescription("Last 10 stored reports (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAnalyze(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return mcpError("invalid base64 content"), nil
		}

		name := filepath.Base(req.GetString("filename", "report"))
		areq := analysis.NewRequest(
			analysis.Document{Name: name, Data: data},
			req.GetString("query", ""),
			req.GetString("analysis_type", ""),
		)

		code, body := analyze(ctx, deps, areq)
		rep, ok := body.(report.Report)
		if !ok {
			return mcpError(errorMessage(body)), nil
		}
		if code != http.StatusOK {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: rep.Markdown()}},
				IsError: true,
			}, nil
		}
		return mcpText(rep.Markdown()), nil
	}
}

func errorMessage(body any) string {
	if m, ok := body.(map[string]any); ok {
		if e, ok := m["error"].(map[string]any); ok {
			if msg, ok := e["message"].(string); ok {
				return msg
			}
		}
	}
	return "analysis failed"
}

func mcpListReports(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Store == nil {
			return mcpError("report history is disabled"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		reports, err := deps.Store.ListReports(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("list failed: %v", err)), nil
		}

		b, err := json.Marshal(reports)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reports: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetReport(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Store == nil {
			return mcpError("report history is disabled"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		rep, err := deps.Store.GetReport(id)
		if err != nil {
			return mcpError(fmt.Sprintf("report %s: %v", id, err)), nil
		}
		return mcpText(rep.Markdown()), nil
	}
}

func mcpResourceRecent(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Store == nil {
			return nil, fmt.Errorf("report history is disabled")
		}
		reports, err := deps.Store.ListReports(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}

		for i := range reports {
			if utf8.RuneCountInString(reports[i].Query) > 200 {
				reports[i].Query = string([]rune(reports[i].Query)[:200]) + "..."
			}
		}

		b, err := json.Marshal(reports)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reports: %w", err)
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
