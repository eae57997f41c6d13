package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/use-agent/basket/api/handler"
	"github.com/use-agent/basket/api/middleware"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/models"
)

// NewRouter creates a configured Gin engine with all routes and middleware,
// wrapped in the CORS handler.
//
// Middleware chain:
//
//	Global:  CORS → Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health is outside auth so monitoring probes always work.
func NewRouter(svc *handler.Service, batches *handler.Batches, cfg *config.Config, startTime time.Time) http.Handler {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.CustomRecovery(recoverToJSON))
	r.Use(gin.Logger())

	r.GET("/api/health", handler.Health(svc, startTime))

	protected := r.Group("/api")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/products", handler.Products(svc))

	v1 := protected.Group("/v1")
	v1.GET("/search", handler.Search(svc))
	v1.GET("/sources", handler.Sources(svc))
	v1.POST("/batch/search", batches.Post())
	v1.GET("/batch/:id", batches.Get())

	return WithCORS(r, cfg.CORS)
}

// WithCORS wraps h with the configured cross-origin policy.
func WithCORS(h http.Handler, cfg config.CORSConfig) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})(h)
}

// recoverToJSON turns a handler panic into the generic 500 body.
func recoverToJSON(c *gin.Context, rec any) {
	slog.Error("panic serving request",
		"path", c.Request.URL.Path,
		"panic", rec,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: "Failed to search products",
		Details: &models.ErrorDetail{
			Code:    models.ErrCodeInternal,
			Message: "internal error",
		},
	})
}
