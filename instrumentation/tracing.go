package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys used across the gateway.
//
// Never attach actual credential values (access tokens, refresh tokens,
// authorization codes, code verifiers, session IDs) to spans. Traces are
// persisted and replicated far more widely than the stores these values
// live in; only metadata belongs here.
const (
	AttrEndpoint  = "login.endpoint"
	AttrScope     = "login.scope"
	AttrError     = "login.error"
	AttrOperation = "storage.operation"
	AttrProvider  = "provider.name"
)

// SetSpanError marks a span as failed with the given message. Nil-safe.
func SetSpanError(span trace.Span, message string) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Error, message)
}

// SetSpanOK marks a span as successful. Nil-safe.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// SpanAttr is a small convenience wrapper for string span attributes.
func SpanAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
