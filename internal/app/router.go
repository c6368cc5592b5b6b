package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/apolmig/smartqr-backend/internal/observability"
)

func wireRouter(cfg Config, h Handlers, metrics *observability.Metrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-Id", "X-User-Name", "X-User-Email"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("smartqr-backend"))

	// Operability
	router.GET("/healthcheck", func(c *gin.Context) { c.String(200, "ok") })
	router.GET("/healthz", h.Health.Healthz)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Scan hot path
	router.GET("/r/:key", h.Redirect.Resolve)

	api := router.Group("/api")
	{
		api.GET("/me", h.User.GetMe)
		api.POST("/records", h.Record.Create)
		api.GET("/records", h.Record.List)
		api.PATCH("/records/:id", h.Record.Update)
		api.DELETE("/records/:id", h.Record.Delete)
		api.GET("/records/:id/stats", h.Record.Stats)
		api.GET("/diagnostics", h.Health.Diagnostics)
	}

	return router
}
