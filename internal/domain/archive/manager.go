package archive

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Registry is the part of the package registry archiving works on.
type Registry interface {
	CheckArchivable(name string, user int) error
	Archive(name string, user int) (*types.ArchivedPackage, error)
	ArchivedUsers(name string) []int
	Installer(name string) string
	UnarchiveReceiver(installer string, user int) (types.ComponentName, bool)
	ResolveActivity(caller types.Caller, comp types.ComponentName, user int) *types.ActivityInfo
}

// Sessions creates and abandons unarchive draft sessions.
type Sessions interface {
	Create(params types.SessionParams) (int, error)
	Abandon(id int) error
}

// Bus publishes broadcasts and lets the manager watch session results.
type Bus interface {
	broadcast.Publisher
	Register(filter broadcast.Filter, handler func(broadcast.Broadcast)) *broadcast.Subscription
}

// unarchive is an outstanding unarchive request. Its id is the draft
// session id.
type unarchive struct {
	id        int
	pkg       string
	user      int
	allUsers  bool
	installer string
	receivers []types.StatusReceiver
	// failed is set once an error status was delivered.
	failed bool
}

// Manager orchestrates archive and unarchive over the registry.
type Manager struct {
	mu      sync.Mutex
	pending map[int]*unarchive

	registry Registry
	sessions Sessions
	bus      Bus
	sub      *broadcast.Subscription
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the archive logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics enables archive metrics.
func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates an archive manager and starts watching for finished
// unarchive sessions.
func NewManager(reg Registry, sessions Sessions, bus Bus, opts ...Option) *Manager {
	m := &Manager{
		pending:  make(map[int]*unarchive),
		registry: reg,
		sessions: sessions,
		bus:      bus,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sub = bus.Register(func(bc broadcast.Broadcast) bool {
		return bc.Action == broadcast.ActionSessionFinished && bc.UnarchiveID != 0
	}, m.sessionFinished)
	return m
}

// Close stops watching sessions.
func (m *Manager) Close() {
	m.sub.Close()
}

// Archive archives name for user. The result is returned and delivered to
// receiver; failures leave the package untouched.
func (m *Manager) Archive(name string, user int, receiver types.StatusReceiver) error {
	_, err := m.registry.Archive(name, user)
	if err != nil {
		m.metrics.RecordArchiveOp("archive", "failure")
		m.logger.Info("archive refused", logging.Package(name), logging.User(user), zap.Error(err))
		types.Deliver(receiver, types.Result{
			Status:        types.StatusFailure,
			StatusMessage: pmerr.Message(err),
			PackageName:   name,
		})
		return err
	}
	m.metrics.RecordArchiveOp("archive", "success")
	types.Deliver(receiver, types.Result{Status: types.StatusSuccess, PackageName: name})
	return nil
}

// IsAppArchivable reports whether name could be archived for user. A
// package that is not installed is an error rather than false.
func (m *Manager) IsAppArchivable(name string, user int) (bool, error) {
	err := m.registry.CheckArchivable(name, user)
	switch {
	case err == nil:
		return true, nil
	case pmerr.KindOf(err) == pmerr.NotInstalled:
		return false, err
	default:
		return false, nil
	}
}

// RequestUnarchive asks the installer to restore an archived package. It
// creates a draft session whose id is the unarchive id and publishes
// UNARCHIVE_PACKAGE to the installer. A repeated request for the same
// package and scope reuses the outstanding draft. receiver gets the final
// result.
func (m *Manager) RequestUnarchive(name string, user int, allUsers bool, receiver types.StatusReceiver) (int, error) {
	users := m.registry.ArchivedUsers(name)
	if (!allUsers && !slices.Contains(users, user)) || (allUsers && len(users) == 0) {
		m.metrics.RecordArchiveOp("unarchive", "failure")
		return 0, pmerr.New(pmerr.NotArchived, "Package %s is not archived", name)
	}

	installer := m.registry.Installer(name)
	if installer == "" {
		m.metrics.RecordArchiveOp("unarchive", "failure")
		return 0, pmerr.New(pmerr.NoInstaller, "No installer found to unarchive app %s.", name)
	}
	rcv, ok := m.registry.UnarchiveReceiver(installer, user)
	if !ok {
		m.metrics.RecordArchiveOp("unarchive", "failure")
		return 0, pmerr.New(pmerr.InstallerNoUnarchival, "Installer does not support unarchival: %s", installer)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.pending {
		if u.pkg == name && u.allUsers == allUsers && (allUsers || u.user == user) && !u.failed {
			if receiver != nil {
				u.receivers = append(u.receivers, receiver)
			}
			m.logger.Info("unarchive already requested", logging.Package(name), zap.Int("unarchive_id", u.id))
			return u.id, nil
		}
	}

	sessionUser := user
	if allUsers {
		sessionUser = types.AllUsers
	}
	id, err := m.sessions.Create(types.SessionParams{
		Mode:                 types.ModeFullInstall,
		AppPackageName:       name,
		InstallFlags:         types.FlagUnarchiveDraft,
		UserID:               sessionUser,
		InstallerPackageName: installer,
	})
	if err != nil {
		m.metrics.RecordArchiveOp("unarchive", "failure")
		return 0, err
	}

	u := &unarchive{id: id, pkg: name, user: user, allUsers: allUsers, installer: installer}
	if receiver != nil {
		u.receivers = append(u.receivers, receiver)
	}
	m.pending[id] = u

	m.bus.Publish(broadcast.Broadcast{
		Action:      broadcast.ActionUnarchivePackage,
		PackageName: name,
		UserID:      user,
		Target:      installer,
		AllUsers:    allUsers,
		UnarchiveID: id,
		Components:  []string{rcv.Class},
	})
	m.metrics.RecordArchiveOp("unarchive", "requested")
	m.logger.Info("unarchive requested",
		logging.Package(name),
		logging.User(user),
		zap.Bool("all_users", allUsers),
		zap.Int("unarchive_id", id),
		zap.String("installer", installer))
	return id, nil
}

// ReportUnarchivalStatus records installer progress. OK keeps the draft
// open for the installer's session. Any error status fails the request
// with the error dialog action and abandons the draft.
func (m *Manager) ReportUnarchivalStatus(id int, status UnarchivalStatus) error {
	if !status.Valid() {
		return pmerr.New(pmerr.InvalidSessionParams, "Invalid unarchival status %d", int(status))
	}

	m.mu.Lock()
	u, ok := m.pending[id]
	if !ok || u.failed {
		m.mu.Unlock()
		return pmerr.New(pmerr.InvalidSessionParams, "Invalid unarchive id %d", id)
	}
	if status == UnarchivalOK {
		m.mu.Unlock()
		m.logger.Info("unarchival in progress", zap.Int("unarchive_id", id), logging.Package(u.pkg))
		return nil
	}
	u.failed = true
	receivers := u.receivers
	m.mu.Unlock()

	res := types.Result{
		Status:        types.StatusFailure,
		StatusMessage: status.message(u.pkg),
		PackageName:   u.pkg,
		SessionID:     id,
		UserAction:    string(broadcast.ActionUnarchiveErrorDialog),
	}
	for _, r := range receivers {
		r.Deliver(res)
	}
	m.bus.Publish(broadcast.Broadcast{
		Action:      broadcast.ActionUnarchiveErrorDialog,
		PackageName: u.pkg,
		UserID:      u.user,
		UnarchiveID: id,
		Target:      u.installer,
	})
	m.metrics.RecordArchiveOp("unarchive", "failure")
	m.logger.Warn("unarchival failed",
		zap.Int("unarchive_id", id),
		logging.Package(u.pkg),
		zap.String("status", status.String()))

	return m.sessions.Abandon(id)
}

// Pending lists outstanding unarchive ids.
func (m *Manager) Pending() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	return ids
}

// StartActivity launches an explicit activity. Launching an archived app's
// launcher activity requests its unarchive instead and returns the
// archived descriptor.
func (m *Manager) StartActivity(caller types.Caller, comp types.ComponentName, user int) (*types.ActivityInfo, error) {
	act := m.registry.ResolveActivity(caller, comp, user)
	if act == nil {
		return nil, pmerr.New(pmerr.ActivityNotFound, "Unable to find explicit activity class {%s}", comp.String())
	}
	if act.Archived {
		if _, err := m.RequestUnarchive(comp.Package, user, false, nil); err != nil {
			return nil, err
		}
	}
	return act, nil
}

// sessionFinished resolves the unarchive whose draft session finished.
func (m *Manager) sessionFinished(bc broadcast.Broadcast) {
	m.mu.Lock()
	u, ok := m.pending[bc.UnarchiveID]
	if ok {
		delete(m.pending, bc.UnarchiveID)
	}
	m.mu.Unlock()
	if !ok || u.failed {
		return
	}

	res := types.Result{
		Status:      types.StatusSuccess,
		PackageName: u.pkg,
		SessionID:   bc.SessionID,
	}
	result := "success"
	if !bc.Success {
		res.Status = types.StatusFailure
		res.StatusMessage = "Unarchive of " + u.pkg + " was abandoned"
		result = "abandoned"
	}
	for _, r := range u.receivers {
		r.Deliver(res)
	}
	m.metrics.RecordArchiveOp("unarchive", result)
	m.logger.Info("unarchive finished",
		zap.Int("unarchive_id", u.id),
		logging.Package(u.pkg),
		zap.Bool("success", bc.Success))
}
