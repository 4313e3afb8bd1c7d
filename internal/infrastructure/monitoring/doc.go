// Package monitoring provides Prometheus metrics for the package manager.
//
// Metrics live on a private registry served by Metrics.Handler at /metrics.
// Categories:
//   - HTTP: request counts, latency, payload sizes
//   - Sessions: open sessions, lifecycle events, commit latency
//   - Registry: known packages, SDK libraries, installs, uninstalls
//   - Archive: archive and unarchive requests by result
//   - Verification: pending requests, outcomes, latency
//   - Broadcasts: published actions, webhook deliveries, websocket clients
//
// All recording methods tolerate a nil *Metrics.
//
// Example Usage:
//
//	metrics := monitoring.NewMetrics()
//	router.Use(monitoring.Middleware(metrics))
//	router.GET("/metrics", gin.WrapH(metrics.Handler()))
package monitoring
