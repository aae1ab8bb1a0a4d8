package registry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope      = "necrocode.registry"
	traceSpanPrefix = "necrocode.registry."

	traceAttrSpec   = "necrocode.spec_name"
	traceAttrTaskID = "necrocode.task_id"
	traceAttrState  = "necrocode.state"
	traceAttrStatus = "necrocode.status"
)

// startSpan opens one span per registry operation. Without an injected
// tracer provider the span comes from the global otel provider, which is a
// no-op unless the host application installed an SDK.
func (r *Registry) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(traceScope)
	if r.tp != nil {
		tracer = r.tp.Tracer(traceScope)
	}
	return tracer.Start(ctx, traceSpanPrefix+op, trace.WithAttributes(attrs...))
}

// instrument opens the span and duration timer for one operation and returns
// the completion callback that closes both, classifying the outcome.
func (r *Registry) instrument(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := r.startSpan(ctx, op, attrs...)
	start := time.Now()
	return ctx, func(err error) {
		status := statusSuccess
		if err != nil {
			status = statusError
			r.metrics.IncFailure(op, reasonFor(err))
		}
		r.metrics.ObserveOperation(op, status, time.Since(start))
		markSpanResult(span, err)
		span.End()
	}
}

func markSpanResult(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(traceAttrStatus, statusError))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(traceAttrStatus, statusSuccess))
}
