// Package api exposes the pricing engine, access gate and bulk estimator over
// HTTP.
package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/bid-intel/internal/access"
	"github.com/sells-group/bid-intel/internal/config"
	"github.com/sells-group/bid-intel/internal/estimator"
	"github.com/sells-group/bid-intel/internal/pricing"
	"github.com/sells-group/bid-intel/internal/resilience"
)

// CallerResolver maps a session token to a caller. A nil caller is anonymous.
type CallerResolver interface {
	Resolve(ctx context.Context, token string) (*access.Caller, error)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Engine    *pricing.Engine
	Gate      *access.Gate
	Callers   CallerResolver
	Estimator *estimator.Estimator
	Server    config.ServerConfig
	Pricing   config.PricingConfig
	Driver    string
	// Breaker, when set, is reported by /api/status.
	Breaker   *resilience.Breaker
}

type handler struct {
	Deps
	maxUpload int64
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	h := &handler{Deps: d, maxUpload: int64(d.Server.MaxUploadMB) << 20}
	origins := corsOrigins(d.Server.CORSOrigins)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   estimatorHeaders,
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}))

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.withCaller)

		r.Get("/status", h.status)

		r.Get("/search/pay-item/{item}", h.searchPayItem)
		r.Get("/search/contractor/{name}", h.searchContractor)
		r.Get("/search/contract/{contractNumber}", h.searchContract)

		r.Get("/pricing/item-summary", h.itemSummary)
		r.Get("/pricing/county-comparison/{item}", h.geoComparison(pricing.DimCounty))
		r.Get("/pricing/district-comparison/{item}", h.geoComparison(pricing.DimDistrict))

		r.Get("/analytics/summary", h.analyticsSummary)
		r.Get("/analytics/contractors/top", h.topContractors)
		r.Get("/analytics/counties", h.countyStats)
		r.Get("/contracts", h.listContracts)
		r.Get("/contractors", h.listContractors)

		r.Get("/account/limits", h.accountLimits)

		r.Post("/estimator/price-items", h.priceItems)
		r.Get("/estimator/template", h.template)
	})

	return r
}

// corsOrigins defaults to any origin. Session cookies are only sent
// cross-origin to explicitly listed origins.
func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
