package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Identity describes who is calling. Authentication happens upstream; the
// gateway forwards the session and user headers.
type Identity struct {
	SessionID string
	UserID    string
	Email     string
}

// Identify stores the caller Identity in the request context. Requests
// without X-Session-ID share the session named by fallbackSession.
func Identify(fallbackSession string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{
				SessionID: headerValue(r, "X-Session-ID", 128),
				UserID:    headerValue(r, "X-User-ID", 64),
				Email:     headerValue(r, "X-User-Email", 254),
			}
			if id.SessionID == "" {
				id.SessionID = fallbackSession
			}
			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromContext(ctx context.Context) Identity {
	if v, ok := ctx.Value(identityKey).(Identity); ok {
		return v
	}
	return Identity{}
}

func headerValue(r *http.Request, name string, max int) string {
	v := strings.TrimSpace(r.Header.Get(name))
	if len(v) > max {
		return ""
	}
	return v
}
