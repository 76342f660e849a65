package main

import (
	"database/sql"
	"net/http"
	"time"

	"welfarecheck-platform/internal/auth"
	"welfarecheck-platform/internal/httpapi"
	"welfarecheck-platform/internal/rbac"
	"welfarecheck-platform/internal/reconciler"
	"welfarecheck-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	auth    *auth.Manager
	db      *sql.DB
	redis   *redis.Client
	webhook reconciler.WebhookHandler
	api     httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := deps.redis.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public; HMAC-verified when a secret is configured).
	r.POST("/webhooks/voice/events", deps.webhook.HandleEvent)

	// protected API group
	v1 := r.Group("/v1")

	// AUTH routes (token issuance) sit outside the bearer requirement.
	v1.POST("/auth/login", deps.api.Login)

	v1.Use(auth.RequireAccessToken(deps.auth))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			wid, _ := auth.WorkspaceID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "workspace_id": wid, "role": role})
		})

		// CALLS routes
		calls := v1.Group("/calls")
		calls.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleCarer, rbac.RoleAdmin)...)
		{
			calls.POST("", deps.api.ScheduleCall)
			calls.GET("", deps.api.ListCalls)
		}

		// REPORTING routes
		reports := v1.Group("/reports")
		reports.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleCarer, rbac.RoleAdmin)...)
		{
			reports.GET("/calls", deps.api.CallsSummary)
		}
	}
}
