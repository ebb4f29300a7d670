// Package mcpadapter exposes analysis lookups and re-triggers as MCP tools so
// assistants can drive the pipeline over stdio.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/core/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "thesis-analysis"
	serverVersion = "0.1.0"

	toolGetAnalysis = "get_document_analysis"
	toolReanalyze   = "reanalyze_document"
)

type Server struct {
	analyses ports.AnalysisService
	mcp      *server.MCPServer
	readOnly bool
}

type Option func(*Server)

// ReadOnly leaves out reanalyze_document. Use it when nothing consumes the
// queue the tool would publish to.
func ReadOnly() Option {
	return func(s *Server) {
		s.readOnly = true
	}
}

func NewServer(analyses ports.AnalysisService, opts ...Option) *Server {
	s := &Server{
		analyses: analyses,
		mcp: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp.AddTool(
		mcp.NewTool(
			toolGetAnalysis,
			mcp.WithDescription("Get the analysis status and result (summary, keywords, sentiment) of a submitted thesis."),
			mcp.WithString("document_id", mcp.Required(), mcp.Description("ID returned when the thesis was submitted")),
		),
		s.handleGetAnalysis,
	)
	if s.readOnly {
		return s
	}
	s.mcp.AddTool(
		mcp.NewTool(
			toolReanalyze,
			mcp.WithDescription("Discard the current analysis of a thesis and queue a fresh one."),
			mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the thesis to analyze again")),
		),
		s.handleReanalyze,
	)
	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	slog.Info("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleGetAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := documentIDArgument(request)
	if errResult != nil {
		return errResult, nil
	}
	view, err := s.analyses.GetAnalysis(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return viewResult(view)
}

func (s *Server) handleReanalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := documentIDArgument(request)
	if errResult != nil {
		return errResult, nil
	}
	view, err := s.analyses.Reanalyze(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return viewResult(view)
}

func documentIDArgument(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id, _ := request.GetArguments()["document_id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return "", mcp.NewToolResultError("document_id argument required")
	}
	return id, nil
}

func viewResult(view *domain.AnalysisView) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal analysis view: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// Tool errors are returned in-band so the client sees them; only the kind is
// reported for unexpected failures.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return mcp.NewToolResultError("document not found")
	case domain.IsKind(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error())
	case domain.IsKind(err, domain.ErrStaleAttempt):
		return mcp.NewToolResultError("analysis was superseded by a newer attempt, retry")
	case domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError("analysis queue unavailable, retry later")
	default:
		slog.Error("mcp tool failed", "error", err)
		return mcp.NewToolResultError("internal error")
	}
}
