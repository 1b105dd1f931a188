package otel

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"go.opentelemetry.io/otel/trace"
)

// TraceIDFromString turns a --trace-id value into a trace ID. A 32-char hex
// string is used as is; anything else is hashed with SHA-256 and the first
// 16 bytes are used, so the same label always maps to the same trace.
// hashed reports which of the two happened.
func TraceIDFromString(s string) (id trace.TraceID, hashed bool) {
	if len(s) == 32 {
		if id, err := trace.TraceIDFromHex(s); err == nil {
			return id, false
		}
	}

	hash := sha256.Sum256([]byte(s))
	copy(id[:], hash[:16])
	return id, true
}

// ContextWithTraceID returns a context whose spans join the trace id as
// children of a synthetic remote parent.
func ContextWithTraceID(ctx context.Context, id trace.TraceID) context.Context {
	var spanID trace.SpanID
	_, _ = rand.Read(spanID[:]) //nolint:errcheck // crypto/rand.Read never fails

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    id,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// TraceIDString formats id as lowercase hex.
func TraceIDString(id trace.TraceID) string {
	return hex.EncodeToString(id[:])
}
