package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/suuupra/upi-switch/internal/api/handlers"
	"github.com/suuupra/upi-switch/internal/config"
	"github.com/suuupra/upi-switch/internal/metrics"
	"github.com/suuupra/upi-switch/internal/middleware"
	"github.com/suuupra/upi-switch/internal/services"
)

func NewRouter(cfg config.Config, sw *services.SwitchService, vpas *services.VPAService, banks *services.BankService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	txh := &handlers.TransactionHandlers{Switch: sw}
	dh := &handlers.DirectoryHandlers{VPAs: vpas, Banks: banks}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/transactions", txh.Process)
		r.Get("/transactions", txh.List)
		r.Get("/transactions/{id}", txh.Get)
		r.Get("/transactions/rrn/{rrn}", txh.GetByRRN)

		r.Get("/vpa/{vpa}", dh.ResolveVPA)

		r.Get("/banks", dh.ListBanks)
		r.Put("/banks/{code}/status", dh.UpdateBankStatus)
		r.Post("/banks/{code}/heartbeat", dh.BankHeartbeat)
	})

	return r
}
