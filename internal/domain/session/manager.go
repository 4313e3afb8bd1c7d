package session

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// MaxActiveSessions bounds sessions that are not yet terminal.
const MaxActiveSessions = 1024

// maxFileBytes bounds a single staged file.
const maxFileBytes = 512 << 20

// Registry is the part of the package registry sessions commit into.
type Registry interface {
	Exists(name string) bool
	HasUser(id int) bool
	Files(name string) []string
	Prepare(req registry.InstallRequest) (*registry.Plan, error)
	Commit(req registry.InstallRequest) (*registry.Plan, error)
}

// Verifier gates a commit on package verification. Verify blocks until
// the verification reaches a terminal state or ctx ends.
type Verifier interface {
	Verify(ctx context.Context, sessionID int, params types.SessionParams, plan *registry.Plan) error
}

// Manager owns install sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int]*Session
	nextID   int

	registry Registry
	verifier Verifier
	bus      broadcast.Publisher
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics enables session metrics.
func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithVerifier gates commits on verification.
func WithVerifier(v Verifier) Option {
	return func(m *Manager) { m.verifier = v }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager committing into reg.
func NewManager(reg Registry, bus broadcast.Publisher, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[int]*Session),
		nextID:   1,
		registry: reg,
		bus:      bus,
		logger:   zap.NewNop(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close aborts in-flight commits and waits for them to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Create allocates a new session. An INHERIT_EXISTING session needs an
// installed target package. A session carrying an UnarchiveID takes over
// the matching draft session and keeps its id.
func (m *Manager) Create(params types.SessionParams) (int, error) {
	if params.UserID != types.AllUsers && !m.registry.HasUser(params.UserID) {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "User %d does not exist", params.UserID)
	}

	var inherited []string
	if params.Mode == types.ModeInheritExisting {
		if params.AppPackageName == "" {
			return 0, pmerr.New(pmerr.InvalidSessionParams, "Inherit mode requires a package name")
		}
		inherited = m.registry.Files(params.AppPackageName)
		if len(inherited) == 0 {
			return 0, pmerr.New(pmerr.InvalidSessionParams, "Missing existing base package for %s", params.AppPackageName)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if params.UnarchiveID != 0 {
		return m.adoptDraftLocked(params, inherited)
	}
	if m.activeLocked() >= MaxActiveSessions {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "Too many active sessions")
	}

	id := m.nextID
	m.nextID++
	m.sessions[id] = newSession(id, params, inherited, m.now())
	m.sessionsChangedLocked()
	m.metrics.RecordSessionEvent("created")

	m.publish(broadcast.Broadcast{
		Action:      broadcast.ActionSessionCreated,
		PackageName: params.AppPackageName,
		UserID:      params.UserID,
		SessionID:   id,
		UnarchiveID: params.UnarchiveID,
	})
	m.logger.Info("session created",
		logging.Session(id),
		zap.String("mode", params.Mode.String()),
		logging.Package(params.AppPackageName),
		zap.String("flags", params.InstallFlags.String()))
	return id, nil
}

func (m *Manager) adoptDraftLocked(params types.SessionParams, inherited []string) (int, error) {
	draft, ok := m.sessions[params.UnarchiveID]
	if !ok {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "Invalid unarchive id %d", params.UnarchiveID)
	}
	draft.mu.Lock()
	defer draft.mu.Unlock()
	if draft.state != types.SessionOpen || !draft.params.InstallFlags.Has(types.FlagUnarchiveDraft) {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "Invalid unarchive id %d", params.UnarchiveID)
	}
	if params.AppPackageName != "" && params.AppPackageName != draft.params.AppPackageName {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "Unarchive id %d belongs to %s", params.UnarchiveID, draft.params.AppPackageName)
	}

	params.AppPackageName = draft.params.AppPackageName
	params.InstallFlags = (params.InstallFlags &^ types.FlagUnarchiveDraft) | types.FlagUnarchive
	if params.InstallerPackageName == "" {
		params.InstallerPackageName = draft.params.InstallerPackageName
	}
	params.UserID = draft.params.UserID
	draft.params = params
	draft.inherited = inherited
	draft.updatedAt = m.now()

	m.logger.Info("unarchive session adopted draft",
		logging.Session(draft.id),
		logging.Package(params.AppPackageName))
	return draft.id, nil
}

// Open returns an open session. Unknown and terminal ids fail with
// SessionNotFound.
func (m *Manager) Open(id int) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, sessionNotFound(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return nil, sessionNotFound(id)
	}
	return s, nil
}

// Write stages an APK read from r under name. Writing an existing name
// replaces its content.
func (m *Manager) Write(id int, name string, r io.Reader) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxFileBytes+1))
	if err != nil {
		return 0, pmerr.Wrap(pmerr.Internal, err, "failed to write %s", name)
	}
	if n > maxFileBytes {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "File %s is too large", name)
	}

	s, err := m.mutable(id)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	s.put(name, &file{location: types.LocationDataApp, data: buf.Bytes()}, m.now())
	return n, nil
}

// AddFile registers a data-loader file. The loader delivers the content
// inline in metadata; size, when non-negative, must match it.
func (m *Manager) AddFile(id int, location types.FileLocation, name string, size int64, metadata []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	s, err := m.mutable(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.params.DataLoaderType() == types.DataLoaderNone {
		return pmerr.New(pmerr.InvalidSessionParams, "Session %d does not use a data loader", id)
	}
	if size >= 0 && size != int64(len(metadata)) {
		return pmerr.New(pmerr.InvalidSessionParams, "File %s declares %d bytes but carries %d", name, size, len(metadata))
	}
	s.put(name, &file{location: location, data: bytes.Clone(metadata), added: true}, m.now())
	return nil
}

// RemoveFile removes a file. In INHERIT_EXISTING sessions the name is
// tombstoned as <name>.removed and stays listed; otherwise a staged
// file is dropped.
func (m *Manager) RemoveFile(id int, location types.FileLocation, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	s, err := m.mutable(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.params.Mode == types.ModeInheritExisting {
		s.tombstone(name, m.now())
		return nil
	}
	if !s.drop(name, m.now()) {
		return pmerr.New(pmerr.InvalidSessionParams, "File %s not found in session %d", name, id)
	}
	return nil
}

// SetDataLoaderParams replaces the data loader of an open session.
func (m *Manager) SetDataLoaderParams(id int, params *types.DataLoaderParams) error {
	s, err := m.mutable(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	if params == nil {
		s.params.DataLoader = nil
	} else {
		dl := *params
		s.params.DataLoader = &dl
	}
	s.updatedAt = m.now()
	return nil
}

// Names lists a session's file names. Inherit sessions list the inherited
// files first and keep tombstoned names alongside their markers.
func (m *Manager) Names(id int) ([]string, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names(), nil
}

// Info returns a session in any state.
func (m *Manager) Info(id int) (types.SessionInfo, error) {
	s, err := m.lookup(id)
	if err != nil {
		return types.SessionInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info(), nil
}

// List returns every session ordered by id.
func (m *Manager) List() []types.SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]types.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, s.info())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Abandon discards a session. Abandoning a terminal session is a no-op.
func (m *Manager) Abandon(id int) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case types.SessionCommitted, types.SessionAbandoned:
		s.mu.Unlock()
		return nil
	case types.SessionSealed:
		s.mu.Unlock()
		return pmerr.New(pmerr.SessionSealed, "Session %d is being committed", id)
	}
	s.state = types.SessionAbandoned
	s.files = make(map[string]*file)
	s.order = nil
	s.updatedAt = m.now()
	params := s.params
	s.mu.Unlock()

	m.mu.Lock()
	m.sessionsChangedLocked()
	m.mu.Unlock()
	m.metrics.RecordSessionEvent("abandoned")

	m.publish(broadcast.Broadcast{
		Action:      broadcast.ActionSessionFinished,
		PackageName: params.AppPackageName,
		UserID:      params.UserID,
		SessionID:   id,
		UnarchiveID: unarchiveID(id, params),
		Success:     false,
	})
	m.logger.Info("session abandoned", logging.Session(id))
	return nil
}

func (m *Manager) lookup(id int) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return s, nil
}

// mutable returns the session locked when it accepts mutations.
func (m *Manager) mutable(id int) (*Session, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	switch s.state {
	case types.SessionOpen:
		return s, nil
	case types.SessionSealed:
		s.mu.Unlock()
		return nil, pmerr.New(pmerr.SessionSealed, "Session %d is being committed", id)
	default:
		s.mu.Unlock()
		return nil, sessionNotFound(id)
	}
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, s := range m.sessions {
		s.mu.Lock()
		if !s.state.Terminal() {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

func (m *Manager) sessionsChangedLocked() {
	m.metrics.SetSessionsActive(m.activeLocked())
}

func (m *Manager) publish(bcs ...broadcast.Broadcast) {
	if m.bus != nil {
		m.bus.Publish(bcs...)
	}
}

func sessionNotFound(id int) error {
	return pmerr.New(pmerr.SessionNotFound, "Session %d not found", id)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return pmerr.New(pmerr.InvalidSessionParams, "Invalid name: %s", name)
	}
	return nil
}

// unarchiveID is the unarchive id a session finishes, zero if none.
func unarchiveID(id int, params types.SessionParams) int {
	if params.InstallFlags.Has(types.FlagUnarchiveDraft) || params.InstallFlags.Has(types.FlagUnarchive) {
		return id
	}
	return 0
}
