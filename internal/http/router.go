package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harshees/storefront/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultRequestTimeout = 30 * time.Second

type RouterConfig struct {
	Carts          CartStore
	Orders         OrderDesk
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	RequestTimeout time.Duration
	MaxBodySize    int64
}

// NewRouter builds the storefront HTTP API, instrumented with OpenTelemetry.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	cartHandler := NewCartHandler(cfg.Carts, cfg.RequestTimeout, cfg.MaxBodySize, cfg.Logger)
	ordersHandler := NewOrdersHandler(cfg.Orders, cfg.RequestTimeout, cfg.MaxBodySize, cfg.Logger)
	rs := responder{logger: cfg.Logger}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Middleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		rs.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.Logger))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Put("/", cartHandler.ReplaceCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}/{size}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}/{size}", cartHandler.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordersHandler.PlaceOrder)
			r.Get("/my", ordersHandler.ListMyOrders)
			r.Get("/{order_id}", ordersHandler.GetOrder)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin(cfg.Logger))
				r.Patch("/{order_id}/status", ordersHandler.UpdateStatus)
				r.Post("/{order_id}/refund", ordersHandler.Refund)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
