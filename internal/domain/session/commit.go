package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// SuccessMessage is the status message of a successful commit.
const SuccessMessage = "INSTALL_SUCCEEDED"

// snapshot is what a sealed session hands to the commit task.
type snapshot struct {
	id      int
	params  types.SessionParams
	inputs  []apk.Input
	removed []string
}

// Commit seals the session and commits it asynchronously. The result is
// delivered to receiver once the commit finishes. On failure the session
// reopens so the caller can fix it and retry.
func (m *Manager) Commit(id int, receiver types.StatusReceiver) error {
	s, err := m.mutable(id)
	if err != nil {
		return err
	}

	if s.params.InstallFlags.Has(types.FlagUnarchiveDraft) {
		s.mu.Unlock()
		return pmerr.New(pmerr.InvalidSessionParams, "Unarchive draft session %d cannot be committed", id)
	}

	snap := snapshot{id: s.id, params: s.params, removed: s.removedNames()}
	for _, name := range s.order {
		f := s.files[name]
		if f.location != types.LocationDataApp {
			continue
		}
		snap.inputs = append(snap.inputs, apk.Input{Name: name, Data: f.data})
	}
	s.state = types.SessionSealed
	s.updatedAt = m.now()
	s.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.commit(s, snap, receiver)
	}()
	return nil
}

// CommitAndWait commits and blocks until the result is available.
func (m *Manager) CommitAndWait(ctx context.Context, id int) (types.Result, error) {
	ch := types.NewResultChan()
	if err := m.Commit(id, ch); err != nil {
		return types.Result{}, err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	}
}

func (m *Manager) commit(s *Session, snap snapshot, receiver types.StatusReceiver) {
	timer := monitoring.NewCommitTimer(m.metrics)
	plan, err := m.install(snap)
	timer.Stop()

	if err != nil {
		m.fail(s, snap, receiver, err)
		return
	}

	res := types.Result{
		Status:        types.StatusSuccess,
		StatusMessage: SuccessMessage,
		PackageName:   plan.PackageName,
		SessionID:     snap.id,
	}

	s.mu.Lock()
	s.state = types.SessionCommitted
	s.params.InstallFlags = plan.Flags
	s.params.AppPackageName = plan.PackageName
	s.files = make(map[string]*file)
	s.result = &res
	s.updatedAt = m.now()
	params := s.params
	s.mu.Unlock()

	m.mu.Lock()
	m.sessionsChangedLocked()
	m.mu.Unlock()
	m.metrics.RecordSessionEvent("committed")
	m.metrics.RecordInstall("success")

	m.publish(broadcast.Broadcast{
		Action:      broadcast.ActionSessionFinished,
		PackageName: plan.PackageName,
		UserID:      params.UserID,
		SessionID:   snap.id,
		UnarchiveID: unarchiveID(snap.id, params),
		Success:     true,
	})
	m.logger.Info("session committed",
		logging.Session(snap.id),
		logging.Package(plan.PackageName),
		zap.Strings("splits", plan.SplitNames()),
		zap.Bool("killed", plan.Killed))
	types.Deliver(receiver, res)
}

// install runs parse, prepare, verification and the registry commit.
// Nothing is applied unless every step succeeds.
func (m *Manager) install(snap snapshot) (*registry.Plan, error) {
	apks, err := apk.ParseAll(m.ctx, snap.inputs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, pmerr.Wrap(pmerr.Aborted, err, "Session %d aborted", snap.id)
		}
		return nil, err
	}

	flags := snap.params.InstallFlags
	if snap.params.UnarchiveID != 0 {
		flags |= types.FlagUnarchive
	}
	payloads := make(map[string][]byte, len(snap.inputs))
	for _, in := range snap.inputs {
		payloads[in.Name] = in.Data
	}
	req := registry.InstallRequest{
		SessionID:   snap.id,
		Mode:        snap.params.Mode,
		PackageName: snap.params.AppPackageName,
		Apks:        apks,
		Payloads:    payloads,
		Removed:     snap.removed,
		Flags:       flags,
		UserID:      snap.params.UserID,
		Installer:   snap.params.InstallerPackageName,
	}

	plan, err := m.registry.Prepare(req)
	if err != nil {
		return nil, err
	}
	if m.verifier != nil {
		if err := m.verifier.Verify(m.ctx, snap.id, snap.params, plan); err != nil {
			return nil, err
		}
	}
	return m.registry.Commit(req)
}

func (m *Manager) fail(s *Session, snap snapshot, receiver types.StatusReceiver, err error) {
	res := types.Result{
		Status:        types.StatusFailure,
		StatusMessage: pmerr.Failure(err),
		PackageName:   snap.params.AppPackageName,
		SessionID:     snap.id,
	}

	s.mu.Lock()
	s.state = types.SessionOpen
	s.result = &res
	s.updatedAt = m.now()
	s.mu.Unlock()

	m.metrics.RecordSessionEvent("failed")
	m.metrics.RecordInstall(failureCode(err))
	m.logger.Warn("session commit failed",
		logging.Session(snap.id),
		logging.Package(snap.params.AppPackageName),
		zap.Error(err))
	types.Deliver(receiver, res)
}

func failureCode(err error) string {
	code := pmerr.KindOf(err).Code()
	if code == "" {
		return strings.ToLower(pmerr.KindOf(err).String())
	}
	return code
}
