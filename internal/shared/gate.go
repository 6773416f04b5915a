package shared

import "context"

// AttemptGate admits outbound request attempts made under a context.
//
// Acquire blocks until one attempt may be sent. The returned done func must be called exactly once
// with whether the request actually went out.
type AttemptGate interface {
	Acquire(ctx context.Context) (done func(sent bool), err error)
}

type gateKey struct{}

// WithAttemptGate returns a context whose outbound attempts pass through g.
func WithAttemptGate(ctx context.Context, g AttemptGate) context.Context {
	return context.WithValue(ctx, gateKey{}, g)
}

// AcquireAttempt asks the context's gate for one attempt. Without a gate it admits immediately.
func AcquireAttempt(ctx context.Context) (done func(sent bool), err error) {
	g, ok := ctx.Value(gateKey{}).(AttemptGate)
	if !ok || g == nil {
		return func(bool) {}, nil
	}
	return g.Acquire(ctx)
}
