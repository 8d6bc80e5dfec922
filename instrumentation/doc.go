// Package instrumentation provides OpenTelemetry metrics and tracing for
// the login gateway. All recording helpers are nil-safe: components hold a
// possibly-nil *Instrumentation and observability silently disables itself
// when none is configured.
package instrumentation
