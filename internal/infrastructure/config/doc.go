// Package config provides 12-factor configuration management for the
// package manager service.
//
// Configuration is loaded from environment variables with defaults.
// CLI flags can override environment variables for development.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - GRPC: health service listener
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - Storage: data root and snapshot database
//   - Verification: verifier window, default action, verifier policy
//   - SharedLibrary: certificate digest override, prune schedule
//   - Webhooks: external broadcast receivers
//   - Users: device users and hidden profiles
//
// The verifier policy may also come from a TOML file (PM_VERIFIER_POLICY).
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	policy, err := cfg.Verification.Policy()
package config
