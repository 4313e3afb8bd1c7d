package registry

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/paths"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// storageNamespace seeds the per-package storage volume UUIDs.
var storageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pkgmgr:storage"))

// InstallRequest is a committed session's content handed to the registry.
type InstallRequest struct {
	SessionID   int
	Mode        types.SessionMode
	PackageName string
	Apks        []*apk.Apk
	// Payloads holds raw APK bytes keyed by session file name.
	Payloads map[string][]byte
	// Removed lists tombstoned file or split names (inherit mode only).
	Removed   []string
	Flags     types.InstallFlags
	UserID    int
	Installer string
}

// Plan is a validated install. It carries what verification needs and
// what Commit will apply.
type Plan struct {
	Request      InstallRequest
	PackageName  string
	Manifest     apk.Manifest
	Splits       map[string]SplitFile
	BaseIncluded bool
	// Flags are the effective install flags: DONT_KILL_APP is cleared
	// whenever the base APK is part of the commit.
	Flags types.InstallFlags
	// Killed is set by Commit when the running app was restarted.
	Killed bool
}

// SplitNames returns the resulting split names, base first.
func (p *Plan) SplitNames() []string {
	r := Record{Splits: p.Splits}
	return r.SplitNames()
}

// Prepare validates req against the current state without mutating it.
func (r *Registry) Prepare(req InstallRequest) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.planLocked(req)
}

// Commit re-validates req against the state at commit time and applies it
// atomically. Either every effect lands or none does.
func (r *Registry) Commit(req InstallRequest) (*Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := r.planLocked(req)
	if err != nil {
		return nil, err
	}
	if err := r.applyLocked(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *Registry) planLocked(req InstallRequest) (*Plan, error) {
	if len(req.Apks) == 0 && len(req.Removed) == 0 {
		return nil, pmerr.New(pmerr.InvalidApk, "No APKs in session")
	}

	name := ""
	added := make(map[string]*apk.Apk, len(req.Apks))
	for _, a := range req.Apks {
		if name == "" {
			name = a.InstalledName()
		} else if a.InstalledName() != name {
			return nil, pmerr.New(pmerr.InvalidApk, "Inconsistent package %s in %s; expected %s", a.InstalledName(), a.File, name)
		}
		split := a.SplitName()
		if err := paths.ValidateSplit(split); err != nil {
			return nil, pmerr.Wrap(pmerr.InvalidApk, err, "Invalid split in %s", a.File)
		}
		if _, dup := added[split]; dup {
			return nil, pmerr.New(pmerr.InvalidApk, "Split %s was defined multiple times", split)
		}
		added[split] = a
	}
	if req.PackageName != "" {
		if name == "" {
			name = req.PackageName
		} else if name != req.PackageName {
			return nil, pmerr.New(pmerr.InvalidApk, "Package %s does not match session target %s", name, req.PackageName)
		}
	}
	if name == "" {
		return nil, pmerr.New(pmerr.InvalidApk, "Unable to determine package name")
	}
	if err := paths.ValidatePackage(name); err != nil {
		return nil, pmerr.Wrap(pmerr.InvalidApk, err, "Invalid package name")
	}

	existing := r.packages[name]
	splits := make(map[string]SplitFile)
	var base apk.Manifest
	haveBase := false

	if req.Mode == types.ModeInheritExisting {
		if existing == nil || !existing.CodePresent {
			return nil, pmerr.New(pmerr.InvalidApk, "Missing existing base package for %s", name)
		}
		for k, v := range existing.Splits {
			splits[k] = v
		}
		base = existing.Manifest
		haveBase = true
		for _, removed := range req.Removed {
			split, ok := resolveSplit(existing, removed)
			if !ok {
				return nil, pmerr.New(pmerr.InvalidApk, "Split %s not found in %s", removed, name)
			}
			delete(splits, split)
		}
	}

	newBase, baseIncluded := added[apk.BaseSplit]
	if baseIncluded {
		base = newBase.Manifest
		haveBase = true
	}
	if !haveBase {
		return nil, pmerr.New(pmerr.InvalidApk, "Full install must include a base package")
	}
	if _, ok := splits[apk.BaseSplit]; !ok && !baseIncluded {
		return nil, pmerr.New(pmerr.InvalidApk, "Missing base package for %s", name)
	}

	for split, a := range added {
		if a.VersionCode != base.VersionCode {
			return nil, pmerr.New(pmerr.InvalidApk, "Split %s version code %d inconsistent with base %d", split, a.VersionCode, base.VersionCode)
		}
		if a.Signer() != base.Signer() {
			return nil, pmerr.New(pmerr.InvalidApk, "Split %s signatures are inconsistent with base", split)
		}
		splits[split] = SplitFile{
			Name:   split,
			File:   paths.SplitFile(split),
			Digest: a.Digest,
			Size:   a.Size,
		}
	}

	if existing != nil && !signerCompatible(existing.Manifest.Certificates, base.Certificates) {
		return nil, mismatch(name)
	}
	if base.SdkLibrary != nil {
		for _, other := range r.packages {
			if other.Name == name || other.Manifest.SdkLibrary == nil {
				continue
			}
			if other.Manifest.SdkLibrary.Name == base.SdkLibrary.Name &&
				!signerCompatible(other.Manifest.Certificates, base.Certificates) {
				return nil, mismatch(other.Name)
			}
		}
	}

	if existing != nil && base.VersionCode < existing.Manifest.VersionCode && !req.Flags.Has(types.FlagAllowDowngrade) {
		return nil, pmerr.New(pmerr.VersionDowngrade, "Downgrade detected: Update version code %d is older than current %d",
			base.VersionCode, existing.Manifest.VersionCode)
	}

	for _, dep := range base.UsesSdkLibraries {
		if err := r.resolveLibraryLocked(name, dep); err != nil {
			return nil, err
		}
	}

	flags := req.Flags
	if baseIncluded {
		flags &^= types.FlagDontKillApp
	}

	return &Plan{
		Request:      req,
		PackageName:  name,
		Manifest:     cloneManifest(base),
		Splits:       splits,
		BaseIncluded: baseIncluded,
		Flags:        flags,
	}, nil
}

func (r *Registry) applyLocked(plan *Plan) error {
	req := plan.Request
	name := plan.PackageName
	existing := r.packages[name]
	now := r.now()

	users, err := r.installUsersLocked(req, existing)
	if err != nil {
		return err
	}

	// Stage the new code directory before touching memory.
	var keep []string
	payloads := make(map[string][]byte)
	added := make(map[string]bool, len(req.Apks))
	for _, a := range req.Apks {
		added[a.SplitName()] = true
		payloads[paths.SplitFile(a.SplitName())] = req.Payloads[a.File]
	}
	if existing != nil && existing.CodePresent {
		for split, f := range plan.Splits {
			if !added[split] {
				keep = append(keep, f.File)
			}
		}
	}
	commitCode, discard, err := r.layout.stageCode(name, keep, payloads)
	if err != nil {
		return pmerr.Wrap(pmerr.Internal, err, "failed to stage %s", name)
	}
	for _, u := range users {
		if err := r.layout.createDataDirs(name, u); err != nil {
			discard()
			return pmerr.Wrap(pmerr.Internal, err, "failed to prepare data for %s", name)
		}
	}
	if err := commitCode(); err != nil {
		discard()
		return pmerr.Wrap(pmerr.Internal, err, "failed to install %s", name)
	}

	rec := existing
	if rec == nil {
		rec = &Record{
			Name:        name,
			Users:       make(map[int]*UserState),
			StorageUUID: uuid.NewSHA1(storageNamespace, []byte(name)).String(),
		}
	}

	wasInstalled := make(map[int]bool)
	wasArchived := make(map[int]bool)
	for u, st := range rec.Users {
		wasInstalled[u] = st.Installed
		wasArchived[u] = st.Archive != nil
	}
	running := rec.anyInstalled()

	rec.Manifest = plan.Manifest
	rec.Splits = plan.Splits
	rec.CodePresent = true
	rec.CodePath = r.layout.codeDir(name)
	rec.LastUpdate = now
	if rec.Icons == nil || plan.BaseIncluded {
		rec.Icons = make(map[string][]byte)
	}
	for _, a := range req.Apks {
		for path, icon := range a.Icons {
			rec.Icons[path] = icon
		}
	}
	if req.Installer != "" {
		rec.Installer = req.Installer
	}
	if running && !plan.Flags.Has(types.FlagDontKillApp) {
		rec.Restarts++
		plan.Killed = true
	}

	for _, u := range users {
		st, ok := rec.Users[u]
		if !ok {
			st = &UserState{FirstInstall: now}
			rec.Users[u] = st
		}
		st.Installed = true
		st.Archive = nil
	}

	r.packages[name] = rec
	r.rebuildLibrariesLocked()
	r.updateGaugesLocked()
	r.persistLocked(name)

	var bcs []broadcast.Broadcast
	for _, u := range users {
		switch {
		case wasInstalled[u]:
			bcs = append(bcs,
				broadcast.Broadcast{Action: broadcast.ActionPackageRemoved, PackageName: name, UserID: u, Replacing: true},
				broadcast.Broadcast{Action: broadcast.ActionPackageAdded, PackageName: name, UserID: u, Replacing: true},
				broadcast.Broadcast{Action: broadcast.ActionPackageReplaced, PackageName: name, UserID: u},
			)
		case wasArchived[u]:
			bcs = append(bcs, broadcast.Broadcast{Action: broadcast.ActionPackageAdded, PackageName: name, UserID: u, Replacing: true})
		default:
			bcs = append(bcs, broadcast.Broadcast{Action: broadcast.ActionPackageAdded, PackageName: name, UserID: u})
		}
	}
	r.publish(bcs)

	r.logger.Info("package installed",
		logging.Package(name),
		logging.Session(req.SessionID),
		zap.Int64("version", plan.Manifest.VersionCode),
		zap.Strings("splits", rec.SplitNames()),
		zap.Ints("users", users),
		zap.Bool("killed", plan.Killed))
	return nil
}

// installUsersLocked picks the users a commit installs for. An unarchive
// for all users only restores users that have the package archived.
func (r *Registry) installUsersLocked(req InstallRequest, existing *Record) ([]int, error) {
	if req.UserID == types.AllUsers && req.Flags.Has(types.FlagUnarchive) && existing != nil {
		var users []int
		for _, u := range existing.sortedUsers() {
			if existing.Users[u].Archive != nil {
				users = append(users, u)
			}
		}
		if len(users) > 0 {
			return users, nil
		}
	}
	return r.targetUsers(req.UserID)
}

// InstallExisting makes an installed package available to another user.
func (r *Registry) InstallExisting(name string, user int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user]; !ok {
		return pmerr.New(pmerr.UserNotFound, "User %d does not exist", user)
	}
	rec, ok := r.packages[name]
	if !ok || !rec.CodePresent {
		return pmerr.New(pmerr.PackageNotFound, "Package %s doesn't exist", name)
	}
	st, ok := rec.Users[user]
	if ok && st.Installed {
		return nil
	}
	if err := r.layout.createDataDirs(name, user); err != nil {
		return pmerr.Wrap(pmerr.Internal, err, "failed to prepare data for %s", name)
	}
	if !ok {
		st = &UserState{FirstInstall: r.now()}
		rec.Users[user] = st
	}
	st.Installed = true
	st.Archive = nil

	r.rebuildLibrariesLocked()
	r.persistLocked(name)
	r.publish([]broadcast.Broadcast{{Action: broadcast.ActionPackageAdded, PackageName: name, UserID: user}})
	return nil
}

func resolveSplit(rec *Record, removed string) (string, bool) {
	for split, f := range rec.Splits {
		if f.File == removed || split == removed {
			return split, true
		}
	}
	trimmed := strings.TrimSuffix(removed, ".apk")
	if _, ok := rec.Splits[trimmed]; ok {
		return trimmed, true
	}
	return "", false
}

// signerCompatible accepts the same signer or a rotation whose history
// contains the current signer.
func signerCompatible(current, next []string) bool {
	if len(current) == 0 || len(next) == 0 {
		return len(current) == len(next)
	}
	signer := current[len(current)-1]
	return slices.Contains(next, signer)
}

func mismatch(name string) error {
	return pmerr.New(pmerr.SignatureMismatch, "Existing package %s signatures do not match newer version; ignoring!", name)
}
