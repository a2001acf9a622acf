package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/jewel_cart/internal/auth"
	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const userKey ctxKey = iota

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jewel_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jewel_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// UserLookup resolves the account a token belongs to.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type Authenticator struct {
	tokens *auth.TokenManager
	users  UserLookup
	log    *logger.Logger
}

func NewAuthenticator(tokens *auth.TokenManager, users UserLookup, log *logger.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, log: log}
}

// Protect requires a valid bearer token whose user still exists. Browsers
// cannot set headers on websocket upgrades, so access_token in the query is
// accepted too.
func (a *Authenticator) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			raw = r.URL.Query().Get("access_token")
		}
		if raw == "" {
			respondError(w, http.StatusUnauthorized, "You are not logged in. Please log in to get access.")
			return
		}

		claims, err := a.tokens.Parse(raw)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token or authorization failed.")
			return
		}

		user, err := a.users.GetUser(r.Context(), claims.UserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "The user belonging to this token no longer exists.")
			return
		}
		if err != nil {
			a.log.Error("failed to load token user", "user_id", claims.UserID, "error", err)
			respondError(w, http.StatusInternalServerError, "Authorization failed")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil || user.Role == "" {
				respondError(w, http.StatusUnauthorized, "Invalid token or authorization failed.")
				return
			}
			if user.Role != role {
				respondError(w, http.StatusForbidden, "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

// WithUser is used by tests and tools that bypass token parsing.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// requestLogger writes one structured line per request.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		trace.SpanFromContext(r.Context()).SetName(r.Method + " " + route)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routePattern is only complete once chi has finished routing.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}
