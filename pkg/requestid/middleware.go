package requestid

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paykit/pkg/logger"
)

const (
	Header      = "X-Request-ID"
	maxIDLength = 128
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type contextKey struct{}

// Middleware ensures every request carries a request id.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !isValid(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)

		ctx := context.WithValue(r.Context(), contextKey{}, id)
		ctx = logger.ContextWith(ctx, logger.RequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the request id stored by Middleware, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

func isValid(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}
