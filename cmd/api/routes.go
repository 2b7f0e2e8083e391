package main

import (
	"net/http"

	"callsight/internal/auth"
	"callsight/internal/calls"
	"callsight/internal/rbac"
	"callsight/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	auth      *auth.Manager
	calls     calls.HTTPHandlers
	reporting *reporting.Service
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandlers := auth.Handlers{Manager: deps.auth}
	r.POST("/auth/login", authHandlers.Login)
	r.POST("/auth/refresh", authHandlers.Refresh)

	// Provider push notifications (public by provider contract).
	// NOTE: failures are acknowledged with success; see HTTPHandlers.Webhook.
	r.POST("/calls/webhook", deps.calls.Webhook)

	// protected call lifecycle API
	protected := r.Group("/calls")
	protected.Use(auth.RequireAccessToken(deps.auth))
	{
		protected.POST("", deps.calls.Create)
		protected.GET("", deps.calls.List)
		protected.GET("/health", deps.calls.Health)
		protected.POST("/sync", deps.calls.Sync)
		protected.GET("/summary", func(c *gin.Context) {
			out, err := deps.reporting.CallsSummary(c.Request.Context())
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
				return
			}
			c.JSON(http.StatusOK, out)
		})

		// bulk destructive; admin only
		protected.POST("/clear", rbac.RequireAnyRole(rbac.RoleAdmin), deps.calls.Clear)

		protected.GET("/:id", deps.calls.Get)
		protected.GET("/:id/details", deps.calls.Details)
		protected.GET("/:id/pdf", deps.calls.DownloadPDF)
	}
}
