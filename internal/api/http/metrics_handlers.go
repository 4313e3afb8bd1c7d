package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MetricsJSON returns the metrics snapshot as JSON
func (h *Handlers) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics are disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().UTC(),
		"backend":   h.metrics.Snapshot(),
	})
}

// Prometheus serves the prometheus exposition format
func (h *Handlers) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
