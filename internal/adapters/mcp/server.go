package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
)

const (
	ToolName      = "retrieve_legal_passages"
	maxQueryBytes = 4096
)

type Server struct {
	answerer ports.Answerer
	mcp      *server.MCPServer
}

func NewServer(answerer ports.Answerer, version string) *Server {
	s := &Server{
		answerer: answerer,
		mcp: server.NewMCPServer(
			"legal-retrieval",
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.mcp.AddTool(retrieveTool(), s.handleRetrieve)
	return s
}

func retrieveTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Search the Vietnamese legal corpus and return the most relevant passages, "+
			"reranked by a cross-encoder, with a relevance gate decision."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Legal question in natural language."),
		),
		mcp.WithNumber("rerank_breadth",
			mcp.Description("Number of passages to return after reranking."),
		),
		mcp.WithNumber("retrieval_breadth",
			mcp.Description("Number of fused candidates passed to the reranker."),
		),
		mcp.WithNumber("min_score",
			mcp.Description("Relevance threshold override for the gate."),
		),
	)
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

type toolResult struct {
	Outcome   domain.GateOutcome   `json:"outcome"`
	Threshold float64              `json:"threshold"`
	Passages  []domain.ScoredChunk `json:"passages"`
	Accepted  int                  `json:"accepted"`
}

func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(query) > maxQueryBytes {
		return mcp.NewToolResultError(fmt.Sprintf("query exceeds %d bytes", maxQueryBytes)), nil
	}

	var minScore *float64
	if raw, ok := request.GetArguments()["min_score"]; ok {
		value, isNumber := raw.(float64)
		if !isNumber {
			return mcp.NewToolResultError(fmt.Sprintf("min_score must be a number, got %v", raw)), nil
		}
		minScore = &value
	}

	answer, err := s.answerer.Answer(ctx, domain.RetrieveRequest{
		Query:            query,
		RetrievalBreadth: request.GetInt("retrieval_breadth", 0),
		RerankBreadth:    request.GetInt("rerank_breadth", 0),
	}, minScore)
	if err != nil {
		slog.Warn("mcp_retrieve_failed", "kind", domain.KindOf(err), "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", domain.KindOf(err), err)), nil
	}

	body, err := json.MarshalIndent(toolResult{
		Outcome:   answer.Gate.Outcome,
		Threshold: answer.Gate.Threshold,
		Passages:  answer.Chunks,
		Accepted:  len(answer.Gate.Accepted),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
