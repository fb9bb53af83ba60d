package routes

import (
	"almanac-api/internal/auth"
	"almanac-api/internal/handlers"
	"almanac-api/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the authentication surface and the protected
// admin group. The transport policy gate wraps every sensitive endpoint;
// the httprate limiter caps request volume on the two endpoints that do
// cryptographic work for unauthenticated callers.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	maintenanceHandler *handlers.MaintenanceHandler,
	tokens *auth.TokenService,
	requireHTTPS bool,
) {
	transportGate := middleware.RequireHTTPS(requireHTTPS)
	floodLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())

	router.Route("/auth", func(r chi.Router) {
		r.Use(transportGate)
		r.With(floodLimit).Post("/login", authHandler.Login)
		r.With(floodLimit).Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Whoami)
	})

	// Protected routes - authentication required. Downstream handlers read
	// the verified identity from the request context; there is no bespoke
	// auth contract per route.
	router.Group(func(r chi.Router) {
		r.Use(transportGate)
		r.Use(auth.RequireAuth(tokens))

		r.Post("/admin/ratelimit/cleanup", maintenanceHandler.CleanupRateLimit)
	})
}
