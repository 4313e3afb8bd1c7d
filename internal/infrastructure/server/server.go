package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/pkgmgr/internal/api/http"
	"github.com/GriffinCanCode/pkgmgr/internal/api/middleware"
	"github.com/GriffinCanCode/pkgmgr/internal/api/ws"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/archive"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/session"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/verification"
	"github.com/GriffinCanCode/pkgmgr/internal/grpc"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/notify"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
	"github.com/GriffinCanCode/pkgmgr/internal/shell"
	"github.com/GriffinCanCode/pkgmgr/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router       *gin.Engine
	bus          *broadcast.Bus
	store        *storage.Store
	registry     *registry.Registry
	verification *verification.Coordinator
	sessions     *session.Manager
	archive      *archive.Manager
	shell        *shell.Runner
	notifier     *notify.Notifier
	health       *grpc.Server
	logger       *logging.Logger
	config       *config.Config
	metrics      *monitoring.Metrics

	closeOnce sync.Once
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing package manager",
		zap.String("port", cfg.Server.Port),
		zap.String("data_root", cfg.Storage.DataRoot),
		zap.Bool("verification", cfg.Verification.Enabled),
	)

	s := &Server{logger: logger, config: cfg, metrics: monitoring.NewMetrics()}
	if err := s.build(ctx); err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) build(ctx context.Context) error {
	cfg := s.config

	s.bus = broadcast.NewBus(
		broadcast.WithLogger(s.logger.Component("broadcast")),
		broadcast.WithMetrics(s.metrics),
	)

	regOpts := []registry.Option{
		registry.WithLogger(s.logger.Component("registry", zap.String("data_root", cfg.Storage.DataRoot))),
		registry.WithMetrics(s.metrics),
		registry.WithUsers(usersFromConfig(cfg.Users)...),
	}
	if cfg.SharedLibrary.CertDigestOverride != "" {
		regOpts = append(regOpts, registry.WithSdkCertDigestOverride(cfg.SharedLibrary.CertDigestOverride))
	}
	if cfg.Storage.DBPath != "" {
		store, err := storage.New(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open package store: %w", err)
		}
		s.store = store
		regOpts = append(regOpts, registry.WithStore(store))
		s.logger.Info("Package persistence enabled", zap.String("db", cfg.Storage.DBPath))
	}

	s.registry = registry.New(cfg.Storage.DataRoot, s.bus, regOpts...)
	if err := s.registry.Load(ctx); err != nil {
		return err
	}

	if cfg.Storage.SystemDir != "" {
		seeder := registry.NewSeeder(s.registry, cfg.Storage.SystemDir, s.logger.Component("seeder"))
		res, err := seeder.Seed(ctx)
		if err != nil {
			s.logger.Warn("Failed to seed system packages", zap.Error(err))
		} else {
			s.logger.Info("System packages seeded",
				logging.Packages(res.Installed),
				zap.Int("skipped", len(res.Skipped)),
				zap.Int("failed", len(res.Failed)))
		}
	}

	sessionOpts := []session.Option{
		session.WithLogger(s.logger.Component("session", zap.Bool("verification", cfg.Verification.Enabled))),
		session.WithMetrics(s.metrics),
	}
	if cfg.Verification.Enabled {
		opts, err := verification.OptionsFromConfig(cfg.Verification)
		if err != nil {
			return fmt.Errorf("failed to load verifier policy: %w", err)
		}
		s.verification = verification.NewCoordinator(opts, s.registry, s.bus,
			verification.WithLogger(s.logger.Component("verification")),
			verification.WithMetrics(s.metrics))
		sessionOpts = append(sessionOpts, session.WithVerifier(s.verification))
	}
	s.sessions = session.NewManager(s.registry, s.bus, sessionOpts...)
	s.archive = archive.NewManager(s.registry, s.sessions, s.bus,
		archive.WithLogger(s.logger.Component("archive")),
		archive.WithMetrics(s.metrics))
	s.shell = shell.New(s.registry, s.sessions, s.archive, shell.WithLogger(s.logger.Component("shell")))

	if len(cfg.Webhooks.URLs) > 0 {
		s.notifier = notify.New(cfg.Webhooks, s.bus, nil,
			notify.WithLogger(s.logger.Component("webhooks")),
			notify.WithMetrics(s.metrics))
	}

	if cfg.GRPC.Enabled {
		s.health = grpc.NewServer(s.logger.Component("grpc"))
	}

	s.router = s.newRouter()
	return nil
}

func (s *Server) newRouter() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(s.logger.Component("http")))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(s.registry, s.sessions, s.archive, s.verification, s.shell, s.metrics,
		s.logger.Component("api"))
	apihttp.RegisterRoutes(router, handlers)

	wsHandler := ws.NewHandler(s.bus, s.logger.Component("ws"), s.metrics)
	router.GET("/stream", wsHandler.HandleConnection)

	return router
}

// usersFromConfig always includes user 0.
func usersFromConfig(cfg config.UserConfig) []types.UserInfo {
	ids := append([]int{0}, cfg.IDs...)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	users := make([]types.UserInfo, 0, len(ids))
	for _, id := range ids {
		users = append(users, types.UserInfo{ID: id, Hidden: slices.Contains(cfg.Hidden, id)})
	}
	return users
}

// Router exposes the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves HTTP and gRPC health until ctx ends, then shuts both down.
func (s *Server) Run(ctx context.Context) error {
	var lis net.Listener
	if s.health != nil {
		var err error
		lis, err = net.Listen("tcp", net.JoinHostPort(s.config.Server.Host, s.config.GRPC.Port))
		if err != nil {
			return fmt.Errorf("failed to listen for grpc: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.notifier != nil {
		s.notifier.Start(ctx)
	}

	g.Go(func() error {
		s.pruneLoop(ctx)
		return nil
	})

	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if lis != nil {
		g.Go(func() error { return s.health.Serve(lis) })
		s.health.SetServing(true)
	}

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down listeners")
		if s.health != nil {
			s.health.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// pruneLoop removes SDK libraries that stayed unused past the grace period.
func (s *Server) pruneLoop(ctx context.Context) {
	interval := s.config.SharedLibrary.PruneInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The registry logs what it pruned.
			s.registry.PruneUnusedLibraries(s.config.SharedLibrary.PruneGrace)
		}
	}
}

// Close gracefully shuts down the server
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		if s.notifier != nil {
			s.notifier.Close()
		}
		if s.archive != nil {
			s.archive.Close()
		}
		if s.sessions != nil {
			s.sessions.Close()
		}
		if s.bus != nil {
			s.bus.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.logger.Error("Failed to close package store", zap.Error(err))
			}
		}
		s.metrics.Close()

		_ = s.logger.Sync()
	})
}
