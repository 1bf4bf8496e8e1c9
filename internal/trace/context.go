package trace

import "context"

type tracerKey struct{}

// WithTracer returns a copy of ctx carrying t. A nil t stores Nop, so
// FromContext never hands out a nil Tracer.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, tracerKey{}, t)
}

// FromContext returns the Tracer stored by WithTracer, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	t, _ := ctx.Value(tracerKey{}).(Tracer)
	if t == nil {
		return Nop
	}
	return t
}
