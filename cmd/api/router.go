package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookcatalog-backend/internal/shared/middleware"
	"bookcatalog-backend/internal/shared/response"
	"bookcatalog-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		corsMiddleware(c.Config.App.CORSOrigins),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		setupImportRoutes(v1, c)
	}

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			middleware.AdminKeyHeader, middleware.ActorHeader, middleware.RequestIDHeader,
		},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// ========================================
// IMPORT ROUTES (admin only)
// ========================================
func setupImportRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminMiddleware(c.Config.App.AdminAPIKey))

	imports := admin.Group("/imports")
	{
		imports.POST("/isbns", c.ImportHandler.ImportISBNs)
		imports.POST("/isbns/file", c.ImportHandler.ImportISBNFile)
		imports.POST("/entity", c.ImportHandler.ImportEntity)
		imports.GET("/:id", c.ImportHandler.GetImportJob)
	}

	catalog := admin.Group("/catalog")
	{
		catalog.GET("/:kind/search", c.ImportHandler.SearchEntities)
		catalog.GET("/:kind/isbns", c.ImportHandler.EntityISBNs)
	}
}

// ========================================
// HEALTH
// ========================================
func healthCheckHandler(c *container.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		defer cancel()

		status, healthy := c.HealthStatus(checkCtx)

		body := gin.H{
			"status":       "UP",
			"service":      c.Config.App.Name,
			"version":      c.Config.App.Version,
			"dependencies": status,
		}
		if stats, err := c.DB.Stats(); err == nil {
			body["db_pool"] = stats
		}

		if !healthy {
			body["status"] = "DEGRADED"
			response.Success(ctx, http.StatusServiceUnavailable, body)
			return
		}
		response.Success(ctx, http.StatusOK, body)
	}
}
