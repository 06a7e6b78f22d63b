// Package correlation threads one identifier through a request, the audit rows
// and outbox events it writes, and the relay that later delivers them.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header is checked first when adopting an inbound identifier.
const Header = "X-Correlation-ID"

// maxInboundLength bounds identifiers taken from untrusted headers.
const maxInboundLength = 128

type correlationKey struct{}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id = strings.TrimSpace(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID returns ctx carrying a correlation ID, minting a ULID when none is set.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if cid := ExtractCorrelationID(ctx); cid != "" {
		return ctx, cid
	}
	cid := ulid.Make().String()
	return ContextWithCorrelationID(ctx, cid), cid
}

// FromHeaders adopts the caller's identifier from Header or X-Request-ID and
// otherwise behaves like EnsureCorrelationID.
func FromHeaders(ctx context.Context, headers http.Header) (context.Context, string) {
	if cid := ExtractCorrelationID(ctx); cid != "" {
		return ctx, cid
	}
	for _, name := range []string{Header, "X-Request-ID"} {
		if v := strings.TrimSpace(headers.Get(name)); v != "" && len(v) <= maxInboundLength {
			return ContextWithCorrelationID(ctx, v), v
		}
	}
	return EnsureCorrelationID(ctx)
}
