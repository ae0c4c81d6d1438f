package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single chat call when the config leaves it unset.
const DefaultTimeout = 90 * time.Second

// ErrUnavailable reports that the model could not produce a reply in time or
// the provider could not be reached. Callers may retry the whole request.
var ErrUnavailable = errors.New("llm: unavailable")

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// WithTimeout wraps p so every Chat call runs under its own deadline.
// Failures other than cancellation of the caller's context are reported as
// ErrUnavailable, with the provider error kept in the chain.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		d = DefaultTimeout
	}
	if tp, ok := p.(*timeoutProvider); ok {
		return &timeoutProvider{next: tp.next, timeout: d}
	}
	return &timeoutProvider{next: p, timeout: d}
}

func (t *timeoutProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.next.Chat(callCtx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
		return nil, fmt.Errorf("%w: no reply within %s", ErrUnavailable, t.timeout)
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}
