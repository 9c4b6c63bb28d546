package webhooks

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/paykit/pkg/clientip"
	"github.com/dmitrymomot/paykit/pkg/requestid"
)

// RouterOptions selects what the HTTP surface exposes.
// Nil fields are not mounted.
type RouterOptions struct {
	Webhooks *Handler
	Health   http.Handler
	Metrics  prometheus.Gatherer

	// AllowedNetworks restricts /webhooks to the given sender ranges.
	AllowedNetworks []netip.Prefix
	// TrustProxy reads the client address from forwarding headers.
	TrustProxy bool
}

// NewRouter builds the service router:
//
//	POST /webhooks/{provider}
//	GET  /healthz
//	GET  /metrics
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(opts.TrustProxy))

	if opts.Webhooks != nil {
		allow := clientip.Allowlist(opts.AllowedNetworks, opts.TrustProxy)
		r.Mount("/webhooks", allow(opts.Webhooks.Routes()))
	}
	if opts.Health != nil {
		r.Method(http.MethodGet, "/healthz", opts.Health)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
	return r
}
