package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Invocation holds observability context for one command run.
type Invocation struct {
	Command   string
	ID        string
	StartTime time.Time
}

// NewInvocation creates a new invocation context.
func NewInvocation(command, id string) *Invocation {
	return &Invocation{
		Command:   command,
		ID:        id,
		StartTime: time.Now(),
	}
}

type invocationKey struct{}

// WithInvocation stores an Invocation in the context.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFromContext retrieves the Invocation from context, or nil.
func InvocationFromContext(ctx context.Context) *Invocation {
	if inv, ok := ctx.Value(invocationKey{}).(*Invocation); ok {
		return inv
	}
	return nil
}

// Start opens the root span for the invocation and stores the invocation in
// the returned context.
func (inv *Invocation) Start(ctx context.Context) (context.Context, trace.Span) {
	ctx = WithInvocation(ctx, inv)
	return StartSpan(ctx, SpanInvocationPrefix+inv.Command,
		trace.WithAttributes(
			attribute.String(AttrCommand, inv.Command),
			attribute.String(AttrInvocationID, inv.ID),
		),
	)
}

// End closes the root span, recording err when non-nil.
func (inv *Invocation) End(span trace.Span, err error) {
	SetSpanError(span, err)
	span.End()
}

// Duration returns the time elapsed since the invocation started.
func (inv *Invocation) Duration() time.Duration {
	return time.Since(inv.StartTime)
}
