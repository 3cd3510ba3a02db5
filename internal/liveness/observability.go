package liveness

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracing wraps the otel tracer so call sites stay one-liners. With no SDK
// installed the provider is a no-op and spans cost nothing.
type tracing struct {
	tracer trace.Tracer
}

func newTracing() tracing {
	return tracing{tracer: otel.Tracer("veritas/liveness")}
}

type span struct {
	inner trace.Span
}

func (t tracing) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, span) {
	ctx, inner := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span{inner: inner}
}

func (s span) end(err error) {
	if err != nil {
		s.inner.RecordError(err)
		s.inner.SetStatus(codes.Error, err.Error())
	}
	s.inner.End()
}
