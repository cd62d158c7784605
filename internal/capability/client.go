package capability

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds one remote call.
	DefaultTimeout = 45 * time.Second
	// DefaultRetries is how many extra attempts follow a transient failure.
	DefaultRetries = 2

	retryBackoff = 500 * time.Millisecond
)

// Client enforces the per-call timeout and bounded retry policy around an
// Invoker. Transient failures are retried with the same payload; rejections
// and malformed responses propagate immediately. One Client is constructed
// per capability and injected where needed; there are no shared singletons.
type Client struct {
	invoker Invoker
	timeout time.Duration
	retries int
	sleep   func(context.Context, time.Duration)

	mu    sync.Mutex
	calls map[Kind]int64
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetries overrides the transient retry budget.
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
	}
}

// WithSleep injects the inter-attempt delay function (tests pass a no-op).
func WithSleep(sleep func(context.Context, time.Duration)) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient wraps an invoker with the retry and timeout policy.
func NewClient(invoker Invoker, opts ...ClientOption) *Client {
	client := &Client{
		invoker: invoker,
		timeout: DefaultTimeout,
		retries: DefaultRetries,
		sleep:   sleepContext,
		calls:   map[Kind]int64{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Invoke performs the call, retrying transient failures up to the budget.
// Retry exhaustion surfaces as an unavailable error wrapping the last fault.
func (c *Client) Invoke(ctx context.Context, req Request) (Response, error) {
	if c.invoker == nil {
		return Response{}, Unavailable(req.Capability, errors.New("no invoker configured"))
	}
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		c.countCall(req.Capability)
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.invoker.Invoke(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		if classified := classify(req.Capability, err); !IsTransient(classified) {
			return Response{}, classified
		}
		lastErr = err
		if attempt < c.retries {
			c.sleep(ctx, retryBackoff*time.Duration(attempt+1))
		}
	}
	return Response{}, Unavailable(req.Capability, lastErr)
}

// Invocations reports how many remote calls were issued for a capability,
// counting retries individually.
func (c *Client) Invocations(capability Kind) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[capability]
}

func (c *Client) countCall(capability Kind) {
	c.mu.Lock()
	c.calls[capability]++
	c.mu.Unlock()
}

// classify folds raw transport errors into the taxonomy. Already classified
// errors pass through; everything else (deadline, connection faults) is
// transient since the payload itself was never judged.
func classify(capability Kind, err error) error {
	var capErr *Error
	if errors.As(err, &capErr) {
		return err
	}
	return Transient(capability, err)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
