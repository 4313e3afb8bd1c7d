// Package middleware holds the gin middleware in front of the package
// manager API: CORS, per-client rate limiting, request ids and access logs.
package middleware
