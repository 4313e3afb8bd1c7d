// Package main is the entry point for the package manager server.
//
// The server hosts the package registry, install sessions, archiving and
// install verification in one process and exposes them over:
//   - REST API for sessions, packages, archive and verification
//   - WebSocket stream of package broadcasts (/stream)
//   - pm shell passthrough (/shell)
//   - gRPC health service
//   - Webhook delivery of broadcasts (PM_WEBHOOK_URLS)
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Persist packages and seed a system image
//	./server --db /var/lib/pkgmgr/packages.db --system-dir /system/app
//
//	# Development mode (colored logs, debug level)
//	./server --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
