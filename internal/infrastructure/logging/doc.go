// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Domain managers take a *zap.Logger; use Component to derive one that
// carries the component name on every entry.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	sessions := session.NewStore(reg, bus, session.WithLogger(logger.Component("session")))
//	logger.Info("Server starting", zap.String("port", "8000"))
package logging
