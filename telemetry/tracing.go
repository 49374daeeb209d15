// OpenTelemetry tracing for bus traffic and endpoint handlers.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with bus-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include message payloads in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer backed by tp instead of the global
// provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode (payloads in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Request Spans ---

// RequestSpanOptions contains options for request spans.
type RequestSpanOptions struct {
	Routed  bool
	Payload interface{} // Only included if debug=true
}

// StartRequestSpan starts a span for a request leaving sender.
func (t *Tracer) StartRequestSpan(ctx context.Context, sender, topic string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "bus.request", trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(
		attribute.String("bus.sender", sender),
		attribute.String("bus.topic", topic),
	)
	return ctx, span
}

// EndRequestSpan ends a request span.
func (t *Tracer) EndRequestSpan(span trace.Span, opts RequestSpanOptions, err error) {
	span.SetAttributes(attribute.Bool("bus.routed", opts.Routed))
	if t.debug && opts.Payload != nil {
		span.SetAttributes(attribute.String("bus.payload", truncate(fmt.Sprintf("%+v", opts.Payload), 2000)))
	}
	endSpan(span, err)
}

// --- Completion Spans ---

// StartCompleteSpan starts a span for a response sent by responder.
func (t *Tracer) StartCompleteSpan(ctx context.Context, responder, topic string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "bus.complete", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("bus.responder", responder),
		attribute.String("bus.topic", topic),
	)
	return ctx, span
}

// EndCompleteSpan ends a completion span. resolved is false for a request
// that was no longer pending.
func (t *Tracer) EndCompleteSpan(span trace.Span, resolved bool) {
	span.SetAttributes(attribute.Bool("bus.resolved", resolved))
	endSpan(span, nil)
}

// --- Notification Spans ---

// StartNotifySpan starts a span for a broadcast from sender.
func (t *Tracer) StartNotifySpan(ctx context.Context, sender, topic string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "bus.notify", trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(
		attribute.String("bus.sender", sender),
		attribute.String("bus.topic", topic),
	)
	return ctx, span
}

// EndNotifySpan ends a notification span.
func (t *Tracer) EndNotifySpan(span trace.Span, delivered int, err error) {
	span.SetAttributes(attribute.Int("bus.delivered", delivered))
	endSpan(span, err)
}

// --- Handler Spans ---

// HandleSpanOptions contains options for handler spans.
type HandleSpanOptions struct {
	Kind    string // request, notification
	Payload interface{}
}

// StartHandleSpan starts a span for an endpoint handling one message.
func (t *Tracer) StartHandleSpan(ctx context.Context, endpoint, topic string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "endpoint.handle", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("endpoint.name", endpoint),
		attribute.String("bus.topic", topic),
	)
	return ctx, span
}

// EndHandleSpan ends a handler span.
func (t *Tracer) EndHandleSpan(span trace.Span, opts HandleSpanOptions, err error) {
	if opts.Kind != "" {
		span.SetAttributes(attribute.String("bus.kind", opts.Kind))
	}
	if t.debug && opts.Payload != nil {
		span.SetAttributes(attribute.String("bus.payload", truncate(fmt.Sprintf("%+v", opts.Payload), 2000)))
	}
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier so that it can travel
// inside a message.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
