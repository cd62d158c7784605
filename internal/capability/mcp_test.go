package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type analyzeInput struct {
	Content     string `json:"content"`
	Environment string `json:"environment"`
}

// newTestSession wires an in-memory MCP server exposing a stub analyze tool.
func newTestSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(&mcp.Implementation{Name: "stub-capabilities", Version: "0.0.1"}, nil)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "analyze",
		Description: "Stub architecture analysis",
	}, func(_ context.Context, _ *mcp.CallToolRequest, input analyzeInput) (*mcp.CallToolResult, any, error) {
		switch {
		case strings.Contains(input.Content, "aws"):
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "rejected: unsupported provider aws"}},
				IsError: true,
			}, nil, nil
		case strings.Contains(input.Content, "flaky"):
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "backend overloaded"}},
				IsError: true,
			}, nil, nil
		case strings.Contains(input.Content, "garbage"):
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "not json at all"}},
			}, nil, nil
		}
		payload := fmt.Sprintf(`{"components":[{"id":"c1","name":"Frontend","service_type":"app service"}],"environment":%q}`, input.Environment)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: payload}},
		}, nil, nil
	})

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func invokeAnalyze(t *testing.T, inv *MCPInvoker, content string) (Response, error) {
	t.Helper()
	req, err := NewRequest(Analyze, analyzeInput{Content: content, Environment: "dev"})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return inv.Invoke(context.Background(), req)
}

func TestMCPInvokerReturnsToolPayload(t *testing.T) {
	inv, err := NewMCPInvoker(newTestSession(t))
	if err != nil {
		t.Fatalf("new invoker: %v", err)
	}
	resp, err := invokeAnalyze(t, inv, "three tier web app")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var decoded struct {
		Components  []map[string]any `json:"components"`
		Environment string           `json:"environment"`
	}
	if err := json.Unmarshal(resp.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(decoded.Components) != 1 || decoded.Environment != "dev" {
		t.Fatalf("unexpected payload: %s", resp.Payload)
	}
}

func TestMCPInvokerMapsRejectionPrefix(t *testing.T) {
	inv, _ := NewMCPInvoker(newTestSession(t))
	_, err := invokeAnalyze(t, inv, "aws lambda diagram")
	if !IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	var capErr *Error
	if !errors.As(err, &capErr) || !strings.Contains(capErr.Detail, "aws") {
		t.Fatalf("expected provider detail, got %v", err)
	}
}

func TestMCPInvokerMapsToolErrorsToTransient(t *testing.T) {
	inv, _ := NewMCPInvoker(newTestSession(t))
	_, err := invokeAnalyze(t, inv, "flaky diagram")
	if !IsTransient(err) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestMCPInvokerFlagsNonJSONResponses(t *testing.T) {
	inv, _ := NewMCPInvoker(newTestSession(t))
	_, err := invokeAnalyze(t, inv, "garbage diagram")
	if KindOf(err) != KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestMCPInvokerHonorsToolNameOverride(t *testing.T) {
	inv, _ := NewMCPInvoker(newTestSession(t), WithToolName(CheckCompliance, "analyze"))
	req, err := NewRequest(CheckCompliance, analyzeInput{Content: "web app", Environment: "dev"})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if _, err := inv.Invoke(context.Background(), req); err != nil {
		t.Fatalf("override should route to the analyze tool: %v", err)
	}
}
