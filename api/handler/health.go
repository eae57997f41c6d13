package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/basket/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/health. It always answers 200 so
// load balancers keep routing while the renderer is (re)starting.
func Health(svc *Service, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   "ok",
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Renderer: svc.Stats(),
			Version:  Version,
		})
	}
}
