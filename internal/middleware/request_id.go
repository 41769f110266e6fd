package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	requestIDKey      contextKey = "requestId"
	requestIDHeader              = "X-Request-Id"
	maxRequestIDBytes            = 128
)

// RequestID propagates an inbound X-Request-Id or X-Correlation-Id, or assigns a new UUID.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := inboundRequestID(r.Header)
			if id == "" {
				id = uuid.NewString()
			}
			r.Header.Set(requestIDHeader, id)
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		})
	}
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// inboundRequestID ignores oversized ids and ids with non-printable bytes.
func inboundRequestID(h http.Header) string {
	for _, name := range []string{requestIDHeader, "X-Correlation-Id"} {
		id := strings.TrimSpace(h.Get(name))
		if id == "" || len(id) > maxRequestIDBytes {
			continue
		}
		if strings.IndexFunc(id, func(r rune) bool { return r < 0x21 || r > 0x7e }) >= 0 {
			continue
		}
		return id
	}
	return ""
}
