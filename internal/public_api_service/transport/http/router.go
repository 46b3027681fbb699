package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lynqchat/golang_services/internal/public_api_service/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// BreakerState reports the state of a circuit breaker.
type BreakerState interface {
	State() gobreaker.State
}

// RouterConfig wires the handlers into the public router.
type RouterConfig struct {
	Messages       *MessageHandler
	Feed           *FeedHandler
	Preferences    *PreferenceHandler
	JWTSecret      []byte
	RateLimiter    *middleware.UserRateLimiter
	BlobBreaker    BreakerState
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the HTTP surface. Feed streams are long-lived, so the request timeout
// applies to every /v1 route except the feed.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "Message service is healthy"}
		if cfg.BlobBreaker != nil {
			state := cfg.BlobBreaker.State()
			resp.BlobStore = state.String()
			if state == gobreaker.StateOpen {
				resp.Status = "Message service is degraded"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.Logger))

		v1.Group(func(api chi.Router) {
			api.Use(chimiddleware.Timeout(cfg.RequestTimeout))
			if cfg.RateLimiter != nil {
				api.Use(cfg.RateLimiter.Middleware(cfg.Logger))
			}
			cfg.Messages.RegisterRoutes(api)
			cfg.Preferences.RegisterRoutes(api)
		})

		cfg.Feed.RegisterRoutes(v1)
	})
	return r
}
