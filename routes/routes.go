package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"

	"github.com/Poneaswaran/College-Management-System-Backend/app"
	"github.com/Poneaswaran/College-Management-System-Backend/authz"
	"github.com/Poneaswaran/College-Management-System-Backend/handlers"
	"github.com/Poneaswaran/College-Management-System-Backend/internal/observability"
	"github.com/Poneaswaran/College-Management-System-Backend/middleware"
	"github.com/Poneaswaran/College-Management-System-Backend/services"
	"github.com/Poneaswaran/College-Management-System-Backend/utils"
)

// publicAuthOperations are throttled per IP; they accept passwords, codes and refresh tokens
var publicAuthOperations = []string{"login", "refreshToken", "requestGuardianOtp", "verifyGuardianOtp"}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           deps.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            stsSeconds(deps.Config.IsProduction()),
		IsDevelopment:         deps.Config.IsDevelopment(),
	})

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(secureMiddleware.Handler)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if deps.Config.Observability.MetricsEnabled {
		r.Use(observability.MetricsMiddleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	throttle := middleware.NewOperationThrottle(deps.Config.Auth.LoginRateLimit, time.Minute,
		func(w http.ResponseWriter, r *http.Request) {
			handlers.HandleServiceError(w, services.ErrRateLimitExceeded, deps.Logger)
		},
		publicAuthOperations...,
	)

	// Every operation goes through the gate inside the executor, so the
	// route itself only authenticates.
	r.Group(func(r chi.Router) {
		r.Use(throttle.Handler)
		r.Use(deps.AuthMiddleware.Authenticate)
		r.Post("/graphql", deps.GraphQLHandler.HandleGraphQL)
	})

	// Operator endpoints use the REST form of the gate
	r.Route("/admin", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.Authenticate)
		r.Use(deps.AuthMiddleware.RequireCapability(authz.IsAdmin()))
		r.Post("/revocations/purge", deps.AdminHandler.HandlePurgeRevocations)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

// stsSeconds enables HSTS for a year in production only
func stsSeconds(production bool) int64 {
	if production {
		return 31536000
	}
	return 0
}
