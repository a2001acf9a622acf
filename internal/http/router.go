package http

import (
	"net/http"
	"time"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterDeps struct {
	Carts          CartService
	Products       ProductLookup
	Orders         OrderService
	Auth           *Authenticator
	Live           http.Handler // nil disables the admin feed
	Log            *logger.Logger
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cartHandler := NewCartHandler(d.Carts, d.Products, d.RequestTimeout, d.Log)
	orderHandler := NewOrderHandler(d.Orders, d.RequestTimeout, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(d.Auth.Protect)

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.Timeout(d.RequestTimeout))
			r.Get("/", cartHandler.GetCart)
			r.Post("/add", cartHandler.AddItem)
			r.Patch("/update/{itemId}", cartHandler.UpdateItem)
			r.Delete("/remove/{itemId}", cartHandler.RemoveItem)
			r.Delete("/clear", cartHandler.ClearCart)
		})

		r.Route("/orders", func(r chi.Router) {
			// long-lived, so kept out of the request timeout
			if d.Live != nil {
				r.With(RequireRole(domain.RoleAdmin)).Get("/admin/live", d.Live.ServeHTTP)
			}

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(d.RequestTimeout))
				r.Get("/", orderHandler.ListOrders)
				r.Post("/", orderHandler.CreateOrder)
				r.With(RequireRole(domain.RoleAdmin)).Get("/admin/all", orderHandler.ListAllOrders)
				r.Get("/{id}", orderHandler.GetOrder)
				r.With(RequireRole(domain.RoleAdmin)).Patch("/{id}/status", orderHandler.UpdateStatus)
				r.With(RequireRole(domain.RoleAdmin)).Get("/{id}/notifications", orderHandler.ListDeliveries)
			})
		})
	})

	// metrics renames the span to the route pattern once routing is done
	return otelhttp.NewHandler(r, "jewel-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method
		}),
	)
}
