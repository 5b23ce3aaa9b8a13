package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/casino-escolar/api/internal/config"
	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/casino-escolar/api/internal/gateway"
	"github.com/casino-escolar/api/internal/handler"
	mw "github.com/casino-escolar/api/internal/middleware"
	"github.com/casino-escolar/api/internal/service"
	"github.com/casino-escolar/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",           // Next.js dev server
			"https://casinoescolar.cl",        // Production
			"https://www.casinoescolar.cl",    // Production (www)
			"https://stg.casinoescolar.cl",    // Staging
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/payments", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	gatewayClient := gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey)
	orchestrator := service.NewOrchestrator(queries, gatewayClient, cfg.PaymentTTL)
	confirmer := service.NewConfirmationHandler(queries, hub)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler := handler.NewOrderHandler(orchestrator, queries)
		r.Route("/orders", orderHandler.RegisterRoutes)

		paymentHandler := handler.NewPaymentHandler(confirmer, orchestrator, handler.TransferConfig{
			Endpoint: cfg.TransferEndpoint,
			Email:    cfg.TransferEmail,
			Secret:   cfg.TransferSecret,
		})
		r.Route("/payments", paymentHandler.RegisterRoutes)

		menuHandler := handler.NewMenuHandler(queries)
		r.Route("/menu", menuHandler.RegisterRoutes)

		adminHandler := handler.NewAdminHandler(service.NewSweeper(queries))
		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.GuardianRoleAdmin))
			adminHandler.RegisterRoutes(r)
		})
	})

	return r
}
