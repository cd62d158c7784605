package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// rejectionPrefix marks a tool error as a semantic refusal rather than a
// fault. The capability servers emit it for out-of-domain inputs.
const rejectionPrefix = "rejected:"

// MCPInvoker calls a capability exposed as an MCP tool over an established
// client session. One session typically serves all four capabilities; tool
// names default to the capability kinds.
type MCPInvoker struct {
	session *mcp.ClientSession
	tools   map[Kind]string
}

// MCPOption customizes an MCPInvoker.
type MCPOption func(*MCPInvoker)

// WithToolName maps a capability to a differently named tool.
func WithToolName(capability Kind, tool string) MCPOption {
	return func(inv *MCPInvoker) {
		if tool != "" {
			inv.tools[capability] = tool
		}
	}
}

// NewMCPInvoker wraps a connected client session.
func NewMCPInvoker(session *mcp.ClientSession, opts ...MCPOption) (*MCPInvoker, error) {
	if session == nil {
		return nil, fmt.Errorf("capability: mcp session is required")
	}
	inv := &MCPInvoker{session: session, tools: map[Kind]string{}}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Invoke calls the tool and returns its first text content as the response
// payload. Tool-level errors map onto the taxonomy: messages with the
// rejection prefix are semantic refusals, everything else is transient.
func (inv *MCPInvoker) Invoke(ctx context.Context, req Request) (Response, error) {
	var arguments map[string]any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &arguments); err != nil {
			return Response{}, Malformed(req.Capability, "request payload must be a JSON object", err)
		}
	}
	result, err := inv.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      inv.toolName(req.Capability),
		Arguments: arguments,
	})
	if err != nil {
		return Response{}, Transient(req.Capability, err)
	}
	if len(result.Content) == 0 {
		return Response{}, Malformed(req.Capability, "empty tool response", nil)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		return Response{}, Malformed(req.Capability, fmt.Sprintf("unexpected content type %T", result.Content[0]), nil)
	}
	if result.IsError {
		detail := strings.TrimSpace(text.Text)
		if rest, found := strings.CutPrefix(detail, rejectionPrefix); found {
			return Response{}, Rejected(req.Capability, strings.TrimSpace(rest))
		}
		return Response{}, Transient(req.Capability, fmt.Errorf("tool error: %s", detail))
	}
	if !json.Valid([]byte(text.Text)) {
		return Response{}, Malformed(req.Capability, "tool response is not valid JSON", nil)
	}
	return Response{Payload: json.RawMessage(text.Text)}, nil
}

func (inv *MCPInvoker) toolName(capability Kind) string {
	if name, ok := inv.tools[capability]; ok {
		return name
	}
	return string(capability)
}
