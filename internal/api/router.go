package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/postpipe/internal/logger"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handlers, registry *prometheus.Registry, log logger.Logger, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", h.GetStats)
		v1.POST("/items", h.CreateItem)
		v1.GET("/queue", h.ListQueue)
		v1.POST("/queue/:id", h.Enqueue)
		v1.DELETE("/queue/:id", h.Dequeue)
		v1.PUT("/queue/:id/position", h.Reorder)
		v1.POST("/items/:id/publish", h.Publish)
		v1.POST("/pipeline/enable", h.Enable)
		v1.POST("/pipeline/disable", h.Disable)
	}

	return router
}

// requestLogger logs each request at debug level with method, path, status
// and latency.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)))
	}
}

// NewServer wraps the router in an http.Server with the configured
// timeouts.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}
