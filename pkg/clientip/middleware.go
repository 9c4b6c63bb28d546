package clientip

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/dmitrymomot/paykit/pkg/logger"
)

type contextKey struct{}

// Middleware stores the client address in the request context and in the
// log attributes of that context under client_ip.
func Middleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := FromRequest(r, trustProxy)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, addr)
			ctx = logger.ContextWith(ctx, slog.String("client_ip", addr.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Allowlist rejects requests from outside networks with 403.
// An empty list allows everyone.
func Allowlist(networks []netip.Prefix, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(networks) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := FromContext(r.Context())
			if !ok {
				addr, ok = FromRequest(r, trustProxy)
			}
			if !ok || !contains(networks, addr) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FromContext returns the address stored by Middleware.
func FromContext(ctx context.Context) (netip.Addr, bool) {
	addr, ok := ctx.Value(contextKey{}).(netip.Addr)
	return addr, ok
}
