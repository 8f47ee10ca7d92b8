package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"creator-platform/internal/handlers"
	"creator-platform/internal/middleware"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// RouterDependencies collects handler dependencies.
type RouterDependencies struct {
	Health         HealthService
	Auth           *handlers.AuthHandler
	Creators       *handlers.CreatorHandler
	Payments       *handlers.PaymentHandler
	WebSocket      *handlers.WebSocketHandler
	JWTSecret      string
	AllowedOrigins []string
}

// NewRouter wires the HTTP routes exposed by the API.
func NewRouter(logger *slog.Logger, deps RouterDependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/ws"})))
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if deps.Health != nil {
			if err := deps.Health.Probe(ctx); err != nil {
				logger.Error("health probe failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", deps.Auth.Register)
			auth.POST("/login", deps.Auth.Login)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(deps.JWTSecret, logger))
		{
			protected.GET("/me", deps.Creators.GetMyProfile)
			protected.GET("/me/transactions", deps.Creators.GetMyTransactions)
			protected.GET("/me/supporters", deps.Creators.GetMySupporters)

			protected.POST("/intents", deps.Payments.CreateIntent)
			protected.POST("/intents/:id/cancel", deps.Payments.CancelIntent)
			protected.GET("/intents/:id/qr", deps.Payments.IntentQR)
		}

		api.GET("/creators/:username/tiers", deps.Creators.GetCreatorTiers)
		api.GET("/payments/finish", deps.Payments.Finish)
		api.POST("/webhook/payment", deps.Payments.HandlePaymentNotification)
		api.GET("/ws/:secretToken", deps.WebSocket.ServeWs)
	}

	return r
}
