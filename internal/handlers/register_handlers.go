package handlers

import (
	portssvc "github.com/canbulut/fxbatch/internal/core/ports/services"
	"github.com/canbulut/fxbatch/internal/middleware"
	"github.com/canbulut/fxbatch/internal/platform/config"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
)

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	uploadLimiter *limiter.Limiter,
) {
	registerCustomValidators()

	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	setupAPIV1Routes(r, cfg, services, uploadLimiter)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	uploadLimiter *limiter.Limiter,
) {
	v1 := r.Group("/api/v1")

	var uploadGuard gin.HandlerFunc
	if uploadLimiter != nil {
		uploadGuard = middleware.RateLimit(uploadLimiter)
	}

	registerConversionRoutes(v1, services.Conversion)
	registerBatchJobRoutes(v1, services.BatchJob, services.JobStatus, uploadGuard)
}
