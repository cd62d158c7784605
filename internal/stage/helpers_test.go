package stage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"diagramforge/internal/cache"
	"diagramforge/internal/capability"
)

func newTestClient(invoke capability.InvokerFunc) *capability.Client {
	return capability.NewClient(invoke, capability.WithSleep(func(context.Context, time.Duration) {}))
}

func encode(t *testing.T, v any) capability.Response {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encode stub response: %v", err)
	}
	return capability.Response{Payload: data}
}

func newRun(content, environment string) *RunContext {
	return NewRunContext(Input{Content: content, Environment: environment})
}

func newMemory() cache.Cache {
	return cache.NewMemory(cache.DefaultCapacity)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
