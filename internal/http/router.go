package http

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.ngs.io/sti-api/internal/logging"
)

// RouterConfig holds the router's settings.
type RouterConfig struct {
	// CORSOrigins lists allowed origins; empty or "*" allows all.
	CORSOrigins []string
}

// SetupRouter creates and configures the Gin router.
func SetupRouter(stiUC STIService, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || slices.Contains(cfg.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	handler := NewHandler(stiUC)

	// API v1 routes.
	v1 := router.Group("/v1")
	sti := v1.Group("/sti")
	sti.GET("/runs", handler.GetRuns)
	sti.GET("/runs/:run/steps", handler.GetSteps)
	sti.GET("/latest", handler.GetLatest)
	sti.GET("/grid", handler.GetGrid)
	sti.GET("/summary", handler.GetSummary)
	sti.GET("/point", handler.GetPoint)
	sti.GET("/source", handler.GetSource)

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
