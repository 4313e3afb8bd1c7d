package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures how long a commit takes to reach a terminal status.
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewCommitTimer starts a commit timer.
func NewCommitTimer(metrics *Metrics) *Timer {
	return &Timer{start: time.Now(), metrics: metrics}
}

// Stop records the elapsed time.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.metrics.ObserveCommit(d)
	return d
}
