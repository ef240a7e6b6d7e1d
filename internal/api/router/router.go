package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/receptionist-scheduler/internal/http/middleware"
	"github.com/wolfman30/receptionist-scheduler/internal/tools"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Tools              *tools.Handler
	MetricsHandler     http.Handler
	WebhookToken       string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.Tools == nil {
		panic("router: tools handler required")
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.Tools.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Voice agent and booking endpoints share the webhook token.
	r.Group(func(hooks chi.Router) {
		hooks.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		hooks.Use(httpmiddleware.WebhookToken(cfg.WebhookToken))
		hooks.Post("/retell/tools", cfg.Tools.RetellTools)
		hooks.Route("/appointments", func(r chi.Router) {
			r.Post("/manage", cfg.Tools.ManageAppointment)
			r.Post("/confirm", cfg.Tools.ConfirmAppointment)
		})
	})

	return r
}
