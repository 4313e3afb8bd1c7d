package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/paths"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Store persists package records. Implementations must be safe for
// concurrent use; the registry calls them while holding its write lock.
type Store interface {
	SavePackage(ctx context.Context, rec *Record) error
	DeletePackage(ctx context.Context, name string) error
	LoadPackages(ctx context.Context) ([]*Record, error)
}

// Registry is the package database. Every mutation runs under the write
// lock and every query builds its result under the read lock, so readers
// never observe a package mid-transition.
type Registry struct {
	mu        sync.RWMutex
	packages  map[string]*Record
	libraries map[string]*library
	users     map[int]types.UserInfo

	layout      layout
	bus         broadcast.Publisher
	store       Store
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	now         func() time.Time
	sdkOverride string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics enables registry metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithStore persists every mutation.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSdkCertDigestOverride accepts this digest in place of a library's
// real certificate digest when resolving SDK dependencies.
func WithSdkCertDigestOverride(digest string) Option {
	return func(r *Registry) { r.sdkOverride = digest }
}

// WithUsers declares device users besides user 0.
func WithUsers(users ...types.UserInfo) Option {
	return func(r *Registry) {
		for _, u := range users {
			r.users[u.ID] = u
		}
	}
}

// New creates a registry rooted at dataRoot.
func New(dataRoot string, bus broadcast.Publisher, opts ...Option) *Registry {
	r := &Registry{
		packages:  make(map[string]*Record),
		libraries: make(map[string]*library),
		users:     map[int]types.UserInfo{0: {ID: 0}},
		layout:    layout{root: paths.Root(dataRoot)},
		bus:       bus,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load restores persisted records.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.LoadPackages(ctx)
	if err != nil {
		return fmt.Errorf("failed to load packages: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		if rec.Users == nil {
			rec.Users = make(map[int]*UserState)
		}
		r.packages[rec.Name] = rec
	}
	r.rebuildLibrariesLocked()
	r.updateGaugesLocked()

	r.logger.Info("registry loaded", zap.Int("packages", len(recs)))
	return nil
}

// ============================================================================
// Users
// ============================================================================

// AddUser registers a device user.
func (r *Registry) AddUser(u types.UserInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// Users lists device users ordered by id.
func (r *Registry) Users() []types.UserInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usersLocked()
}

func (r *Registry) usersLocked() []types.UserInfo {
	out := make([]types.UserInfo, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasUser reports whether the user exists.
func (r *Registry) HasUser(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[id]
	return ok
}

// visible reports whether caller may observe anything in user's profile.
func (r *Registry) visible(caller types.Caller, user int) bool {
	u, ok := r.users[user]
	if !ok {
		return false
	}
	return !u.Hidden || caller.CrossProfile || caller.UserID == user
}

// ============================================================================
// Queries
// ============================================================================

// Exists reports whether a record exists for name, in any state.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.packages[name]
	return ok
}

// IsInstalled reports whether name is installed (not archived) for user.
func (r *Registry) IsInstalled(name string, user int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.packages[name]
	if !ok {
		return false
	}
	st, ok := rec.Users[user]
	return ok && st.Installed
}

// Files returns the installed split file names of name, base first.
func (r *Registry) Files(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.packages[name]
	if !ok {
		return nil
	}
	return rec.Files()
}

// Record returns a deep copy of the record for name.
func (r *Registry) Record(name string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.packages[name]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// GetPackageInfo returns the user's view of a package. Archived packages
// need MatchArchived or MatchUninstalled; keep-data uninstalls need
// MatchUninstalled. Anything else reports PackageNotFound.
func (r *Registry) GetPackageInfo(caller types.Caller, name string, user int, flags types.QueryFlags) (*types.PackageInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.visible(caller, user) {
		return nil, notFound(name)
	}
	rec, ok := r.packages[name]
	if !ok {
		return nil, notFound(name)
	}
	st, ok := rec.Users[user]
	if !ok || !matches(st, flags) {
		return nil, notFound(name)
	}
	return r.infoLocked(rec, user, st), nil
}

// ListPackages returns the user's packages sorted by name.
func (r *Registry) ListPackages(caller types.Caller, user int, flags types.QueryFlags) []types.PackageInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.visible(caller, user) {
		return []types.PackageInfo{}
	}
	out := make([]types.PackageInfo, 0, len(r.packages))
	for _, rec := range r.packages {
		st, ok := rec.Users[user]
		if !ok || !matches(st, flags) {
			continue
		}
		out = append(out, *r.infoLocked(rec, user, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out
}

func matches(st *UserState, flags types.QueryFlags) bool {
	switch {
	case st.Installed:
		return true
	case st.Archive != nil:
		return flags.Has(types.MatchArchived) || flags.Has(types.MatchUninstalled)
	default:
		return flags.Has(types.MatchUninstalled)
	}
}

func notFound(name string) error {
	return pmerr.New(pmerr.PackageNotFound, "Package %s not found", name)
}

func (r *Registry) infoLocked(rec *Record, user int, st *UserState) *types.PackageInfo {
	m := rec.Manifest
	ce, de := r.layout.root.Data(rec.Name, user), r.layout.root.DeviceData(rec.Name, user)
	info := &types.PackageInfo{
		PackageName:                rec.Name,
		UserID:                     user,
		VersionCode:                m.VersionCode,
		SigningCertificates:        append([]string(nil), m.Certificates...),
		Splits:                     rec.SplitNames(),
		InstallerPackageName:       rec.Installer,
		System:                     rec.isSystem(),
		Installed:                  st.Installed,
		Archived:                   st.Archive != nil,
		Enabled:                    st.Enabled.Resolve(m.Application.IsEnabled()),
		EnabledSetting:             st.Enabled,
		FirstInstallTime:           st.FirstInstall,
		LastUpdateTime:             rec.LastUpdate,
		DataDir:                    ce,
		CredentialProtectedDataDir: ce,
		DeviceProtectedDataDir:     de,
		StorageUUID:                rec.StorageUUID,
		SharedLibraries:            append([]types.LibraryRef(nil), m.UsesSdkLibraries...),
	}
	if rec.CodePresent {
		info.CodePath = rec.CodePath
	}
	if st.Archive != nil {
		info.ArchiveTime = st.Archive.Time
	}
	if m.SdkLibrary != nil {
		lib := *m.SdkLibrary
		info.SdkLibrary = &lib
	}
	if st.Archive != nil {
		for _, a := range st.Archive.Metadata.Activities {
			info.Activities = append(info.Activities, types.ActivityInfo{
				Component: a.Component,
				Label:     a.Title,
				Launcher:  true,
				Enabled:   true,
				Archived:  true,
			})
		}
		return info
	}
	for _, a := range m.Activities {
		info.Activities = append(info.Activities, types.ActivityInfo{
			Component: types.ComponentName{Package: rec.Name, Class: a.Name},
			Label:     a.Label,
			Launcher:  a.Launcher,
			Exported:  a.Exported,
			Enabled:   rec.componentEnabled(st, a.Name, a.IsEnabled()),
		})
	}
	return info
}

// ============================================================================
// Internal helpers
// ============================================================================

// targetUsers expands AllUsers.
func (r *Registry) targetUsers(user int) ([]int, error) {
	if user == types.AllUsers {
		ids := make([]int, 0, len(r.users))
		for _, u := range r.usersLocked() {
			ids = append(ids, u.ID)
		}
		return ids, nil
	}
	if _, ok := r.users[user]; !ok {
		return nil, pmerr.New(pmerr.UserNotFound, "User %d does not exist", user)
	}
	return []int{user}, nil
}

func (r *Registry) persistLocked(name string) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if rec, ok := r.packages[name]; ok {
		err = r.store.SavePackage(ctx, rec)
	} else {
		err = r.store.DeletePackage(ctx, name)
	}
	if err != nil {
		r.logger.Error("failed to persist package", logging.Package(name), zap.Error(err))
	}
}

func (r *Registry) updateGaugesLocked() {
	r.metrics.SetRegistrySize(len(r.packages), len(r.libraries))
}

func (r *Registry) publish(bcs []broadcast.Broadcast) {
	if r.bus != nil && len(bcs) > 0 {
		r.bus.Publish(bcs...)
	}
}

// resolvedManifestDefault returns the manifest-declared enabled value of a
// component, or of the application when class is empty.
func resolvedManifestDefault(m apk.Manifest, class string) bool {
	if class == "" {
		return m.Application.IsEnabled()
	}
	for _, a := range m.Activities {
		if a.Name == class {
			return a.IsEnabled()
		}
	}
	for _, rc := range m.Receivers {
		if rc.Name == class {
			return rc.IsEnabled()
		}
	}
	return true
}
