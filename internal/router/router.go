package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sirgawain0x/metoken-orchestrator/internal/config"
	"github.com/sirgawain0x/metoken-orchestrator/internal/handlers"
	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
	"github.com/sirgawain0x/metoken-orchestrator/internal/middleware"
)

// Setup builds the HTTP surface: the authenticated creation API, the state
// stream, and the operational endpoints.
func Setup(
	cfg *config.Config,
	auth *middleware.AuthMiddleware,
	metokens *handlers.MeTokenHandler,
	ws *handlers.WebSocketHandler,
	health *handlers.HealthHandler,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(metricsMiddleware())

	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", auth.RequireAuth())
	{
		api.POST("/metokens", metokens.Create)
		api.GET("/metokens", metokens.ListMeTokens)
		api.GET("/metokens/pending", metokens.ListPending)
		api.GET("/metokens/operations/:handle", metokens.GetOperation)
		api.POST("/metokens/operations/:handle/retry", metokens.Retry)
		api.DELETE("/metokens/operations/:handle", metokens.Delete)
	}

	r.GET("/ws", auth.RequireAuth(), ws.Stream)

	return r
}

func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	allowAll := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			if cfg.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(
			path,
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
