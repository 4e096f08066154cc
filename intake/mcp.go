package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docflow/kit"
)

// RegisterMCP registers all pipeline tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerProcess(srv)
	s.registerDocument(srv)
	s.registerStats(srv)
	s.registerLogs(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s *Service) registerProcess(srv *mcp.Server) {
	type req struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	}

	tool := &mcp.Tool{
		Name:        "docflow_process",
		Description: "Run the document pipeline on raw content: classify, validate, enrich and store",
		InputSchema: inputSchema(map[string]any{
			"content": map[string]any{"type": "string", "description": "Document text content"},
			"source":  map[string]any{"type": "string", "description": "Source file name, extension decides the structural type (.pdf/.json/.txt)"},
		}, []string{"content", "source"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.ProcessDocument(ctx, p.Content, p.Source), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req])
}

func (s *Service) registerDocument(srv *mcp.Server) {
	type req struct {
		DocID string `json:"doc_id"`
	}

	tool := &mcp.Tool{
		Name:        "docflow_document",
		Description: "Retrieve a processed document by its id",
		InputSchema: inputSchema(map[string]any{
			"doc_id": map[string]any{"type": "string", "description": "Document ID"},
		}, []string{"doc_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		doc, ok := s.store.GetDocument(p.DocID)
		if !ok {
			return nil, fmt.Errorf("document not found: %s", p.DocID)
		}
		return doc, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req])
}

func (s *Service) registerStats(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "docflow_stats",
		Description: "Retrieve processing statistics: totals and per-type breakdown",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.store.GetStats(), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req])
}

func (s *Service) registerLogs(srv *mcp.Server) {
	type req struct {
		Level string `json:"level"`
		Limit int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "docflow_logs",
		Description: "Retrieve processing logs, optionally filtered by level",
		InputSchema: inputSchema(map[string]any{
			"level": map[string]any{"type": "string", "description": "Level filter: info, error (empty for all)"},
			"limit": map[string]any{"type": "integer", "description": "Maximum entries to return (default 100)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.store.GetLogs(p.Level, p.Limit), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req])
}

// decodeInto builds the standard MCP argument decoder for a request type.
func decodeInto[T any](r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p T
	if len(r.Params.Arguments) > 0 {
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &p}, nil
}
