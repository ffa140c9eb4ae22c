package common

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type terminalIDKey struct{}

// WithTerminalID stores the cashier terminal identifier on the context.
func WithTerminalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, terminalIDKey{}, id)
}

// TerminalID extracts the terminal identifier from the context if present.
func TerminalID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(terminalIDKey{}).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// TerminalAuth gates the API behind a shared terminal key and tags each
// request with the terminal that issued it.
type TerminalAuth struct {
	Key string
}

// Middleware validates X-Terminal-Key and records X-Terminal-ID.
func (a TerminalAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(a.Key) != "" {
			provided := r.Header.Get("X-Terminal-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(a.Key)) != 1 {
				JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid terminal key", nil)
				return
			}
		}
		terminal := strings.TrimSpace(r.Header.Get("X-Terminal-ID"))
		if terminal == "" {
			terminal = "default"
		}
		next.ServeHTTP(w, r.WithContext(WithTerminalID(r.Context(), terminal)))
	})
}
