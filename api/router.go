package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pasientflyt/backend/api/handlers/workflows"
	"pasientflyt/backend/internal/infra"
	"pasientflyt/backend/internal/logger"
)

// Setup builds the HTTP router. Authentication sits in front of this
// service; the caller's organization arrives in the X-Organization-ID
// header set by the gateway.
func Setup(mode string, wh *workflows.Handler) *gin.Engine {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), traceMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if err := infra.HealthCheck(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1", requireOrganization())
	{
		wf := v1.Group("/workflows")
		{
			wf.POST("", wh.Create)
			wf.GET("", wh.List)
			wf.GET("/:id", wh.Get)
			wf.PUT("/:id", wh.Update)
			wf.DELETE("/:id", wh.Delete)
			wf.PATCH("/:id/active", wh.SetActive)
			wf.POST("/:id/test", wh.Test)
			wf.GET("/:id/stats", wh.Stats)
		}
		v1.GET("/workflow-executions", wh.ListExecutions)
		v1.POST("/events", wh.TriggerEvent)
	}
	return r
}

// requireOrganization rejects requests without a tenant header.
func requireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader("X-Organization-ID")
		if orgID == "" {
			c.AbortWithStatusJSON(400, gin.H{"error": "X-Organization-ID header is required"})
			return
		}
		c.Set("organization_id", orgID)
		c.Next()
	}
}

// traceMiddleware assigns a trace id to every request, honoring one sent by
// the gateway.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx := logger.WithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", traceID)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithContext(c.Request.Context()).Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
