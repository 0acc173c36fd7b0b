package handler

import (
	"net/http"

	"github.com/fiscal-credits/creditledger/pkg/health"
	"github.com/fiscal-credits/creditledger/pkg/metrics"
	pkgmw "github.com/fiscal-credits/creditledger/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the collaborators of NewRouter. Metrics may be nil.
type RouterConfig struct {
	Handler        *Handler
	Health         *health.Checker
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// NewRouter builds the credit API:
//
//	POST /api/creditos/integrar-credito-constituido
//	GET  /api/creditos/{invoiceNumber}
//	GET  /api/creditos/credito/{creditNumber}
//	GET  /api/health/{self,ready,health}
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(pkgmw.RequestID)
	if cfg.Metrics != nil {
		r.Use(pkgmw.Metrics(cfg.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", pkgmw.RequestIDHeader},
		ExposedHeaders: []string{pkgmw.RequestIDHeader},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/creditos", func(r chi.Router) {
			r.Post("/integrar-credito-constituido", cfg.Handler.Integrate)
			r.Get("/credito/{creditNumber}", cfg.Handler.GetCredit)
			r.Get("/{invoiceNumber}", cfg.Handler.ListByInvoice)
		})
		if cfg.Health != nil {
			r.Route("/health", func(r chi.Router) {
				r.Get("/self", cfg.Health.SelfHandler())
				r.Get("/ready", cfg.Health.ReadyHandler())
				r.Get("/health", cfg.Health.HealthHandler())
			})
		}
	})

	return r
}
