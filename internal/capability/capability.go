// Package capability wraps the remote AI analysis capabilities behind a
// typed client with timeouts, bounded retries, and an explicit failure
// taxonomy. Each pipeline stage talks to exactly one logical capability.
package capability

import (
	"context"
	"encoding/json"
)

// Kind names one of the four logical AI capabilities.
type Kind string

const (
	Analyze         Kind = "analyze"
	CheckCompliance Kind = "check_compliance"
	OptimizeCost    Kind = "optimize_cost"
	GenerateCode    Kind = "generate_code"
)

// Request carries a capability-specific payload, pre-encoded so the invoker
// stays schema-agnostic.
type Request struct {
	Capability Kind
	Payload    json.RawMessage
}

// NewRequest encodes a payload for a capability.
func NewRequest(capability Kind, payload any) (Request, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Request{}, Malformed(capability, "encode request", err)
	}
	return Request{Capability: capability, Payload: encoded}, nil
}

// Response is the capability's structured reply, decoded by the stage that
// knows the schema.
type Response struct {
	Payload json.RawMessage
}

// Decode unmarshals the response payload into out, classifying decode
// failures as malformed responses.
func (r Response) Decode(capability Kind, out any) error {
	if err := json.Unmarshal(r.Payload, out); err != nil {
		return Malformed(capability, "decode response", err)
	}
	return nil
}

// Invoker performs a single remote call. Implementations classify every
// failure into the taxonomy in errors.go before returning.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (Response, error)

func (f InvokerFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
