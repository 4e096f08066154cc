package intake

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "docflow-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_ProcessAndStats(t *testing.T) {
	svc := newTestService(t, scriptedLLM(t,
		"Invoice",
		"Analysis text.",
		"Recommendation text.",
	))
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "docflow_process", map[string]any{
		"content": `{"invoice_number":"INV-1","amount":5,"date":"2024-01-01","vendor":"X"}`,
		"source":  "inv.json",
	})

	var result ProcessingResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("status: %s (error: %s)", result.Status, result.Error)
	}
	if result.Classification.DocID == "" {
		t.Fatal("doc id missing")
	}

	statsText := mcpCallTool(t, session, "docflow_stats", map[string]any{})
	var stats struct {
		TotalProcessed int `json:"total_processed"`
		Successful     int `json:"successful"`
	}
	if err := json.Unmarshal([]byte(statsText), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.TotalProcessed != 1 || stats.Successful != 1 {
		t.Fatalf("stats: %+v", stats)
	}

	// The processed document is retrievable through the tool surface.
	docText := mcpCallTool(t, session, "docflow_document", map[string]any{
		"doc_id": result.Classification.DocID,
	})
	var doc struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(docText), &doc); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	if doc.Status != "completed" {
		t.Fatalf("document status: %q", doc.Status)
	}
}

func TestMCP_DocumentNotFound(t *testing.T) {
	svc := newTestService(t, scriptedLLM(t, "Other"))
	session := mcpSession(t, svc)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docflow_document",
		Arguments: map[string]any{"doc_id": "missing"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown document")
	}
}

func TestMCP_Logs(t *testing.T) {
	svc := newTestService(t, scriptedLLM(t, "Other"))
	svc.Store().AddLog("info", "first", nil)
	svc.Store().AddLog("error", "second", nil)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "docflow_logs", map[string]any{"level": "error", "limit": 10})
	var logs []struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(text), &logs); err != nil {
		t.Fatalf("unmarshal logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "second" {
		t.Fatalf("logs: %+v", logs)
	}
}
