package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	// Metrics is served at /metrics when set.
	Metrics  http.Handler
	Recorder RequestRecorder
}

func NewRouter(checkout *CheckoutHandler, orders *OrdersHandler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.Recorder != nil {
		r.Use(MetricsMiddleware(cfg.Recorder))
	}
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(UserIDMiddleware)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/review", checkout.Review)
			r.Post("/orders", checkout.PlaceOrder)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Get("/{order_id}", orders.GetOrder)
			r.Post("/{order_id}/confirm", orders.ConfirmOrder)
			r.Post("/{order_id}/cancel", orders.CancelOrder)
		})
	})

	return r
}
