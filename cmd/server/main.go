package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	pflag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP port")
	pflag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "HTTP host")
	pflag.StringVar(&cfg.Storage.DataRoot, "data-root", cfg.Storage.DataRoot, "package data directory")
	pflag.StringVar(&cfg.Storage.DBPath, "db", cfg.Storage.DBPath, "package snapshot database (empty disables persistence)")
	pflag.StringVar(&cfg.Storage.SystemDir, "system-dir", cfg.Storage.SystemDir, "preinstalled APK directory")
	pflag.StringVar(&cfg.Verification.PolicyFile, "verifier-policy", cfg.Verification.PolicyFile, "verifier policy TOML file")
	pflag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		log.Printf("Server error: %v", err)
		srv.Close()
		os.Exit(1)
	}
}
