// Package grpc serves the standard gRPC health protocol
// (grpc.health.v1.Health) for the package manager so orchestrators can
// probe readiness without speaking the HTTP API.
//
// Example Usage:
//
//	srv := grpc.NewServer(logger)
//	go srv.Serve(lis)
//	srv.SetServing(true)
//	defer srv.Stop()
package grpc
