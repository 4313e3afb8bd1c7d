package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/archive"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/session"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/verification"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Harness is a fully wired in-memory package manager.
type Harness struct {
	Bus          *broadcast.Bus
	Registry     *registry.Registry
	Sessions     *session.Manager
	Archive      *archive.Manager
	Verification *verification.Coordinator
	Metrics      *monitoring.Metrics
	Ctx          context.Context
}

type harnessConfig struct {
	verify   *verification.Options
	registry []registry.Option
}

// HarnessOption configures NewHarness.
type HarnessOption func(*harnessConfig)

// WithVerification gates commits on a coordinator using opts.
func WithVerification(opts verification.Options) HarnessOption {
	return func(c *harnessConfig) { c.verify = &opts }
}

// WithRegistryOptions passes options to the registry.
func WithRegistryOptions(opts ...registry.Option) HarnessOption {
	return func(c *harnessConfig) { c.registry = append(c.registry, opts...) }
}

// NewHarness wires bus, registry, sessions and archive under t.TempDir and
// tears them down with t.Cleanup.
func NewHarness(t testing.TB, opts ...HarnessOption) *Harness {
	t.Helper()
	var cfg harnessConfig
	for _, o := range opts {
		o(&cfg)
	}

	h := &Harness{Bus: broadcast.NewBus(), Metrics: monitoring.NewMetrics()}
	regOpts := append([]registry.Option{registry.WithMetrics(h.Metrics)}, cfg.registry...)
	h.Registry = registry.New(t.TempDir(), h.Bus, regOpts...)

	sessionOpts := []session.Option{session.WithMetrics(h.Metrics)}
	if cfg.verify != nil {
		h.Verification = verification.NewCoordinator(*cfg.verify, h.Registry, h.Bus,
			verification.WithMetrics(h.Metrics))
		sessionOpts = append(sessionOpts, session.WithVerifier(h.Verification))
	}
	h.Sessions = session.NewManager(h.Registry, h.Bus, sessionOpts...)
	h.Archive = archive.NewManager(h.Registry, h.Sessions, h.Bus, archive.WithMetrics(h.Metrics))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	h.Ctx = ctx
	t.Cleanup(func() {
		cancel()
		h.Archive.Close()
		h.Sessions.Close()
		h.Bus.Close()
		h.Metrics.Close()
	})
	return h
}

// Install commits manifests as one full-install session and requires
// success. It returns the session id.
func (h *Harness) Install(t testing.TB, installer string, manifests ...apk.Manifest) int {
	t.Helper()
	id, err := h.Sessions.Create(types.SessionParams{InstallerPackageName: installer})
	require.NoError(t, err)
	for _, m := range manifests {
		_, err = h.Sessions.Write(id, FileName(m), bytes.NewReader(Build(t, m)))
		require.NoError(t, err)
	}
	res, err := h.Sessions.CommitAndWait(h.Ctx, id)
	require.NoError(t, err)
	require.True(t, res.OK(), res.StatusMessage)
	return id
}
