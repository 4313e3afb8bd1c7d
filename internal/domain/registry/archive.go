package registry

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// CheckArchivable runs the archive preconditions without mutating state.
func (r *Registry) CheckArchivable(name string, user int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, _, err := r.checkArchivableLocked(name, user)
	return err
}

// checkArchivableLocked applies the preconditions in order: installed for
// the user, not a system app, has an installer, the installer handles
// unarchival, has a main activity, has not opted out.
func (r *Registry) checkArchivableLocked(name string, user int) (*Record, *UserState, error) {
	rec, ok := r.packages[name]
	if !ok {
		return nil, nil, pmerr.New(pmerr.NotInstalled, "%s is not installed.", name)
	}
	st, ok := rec.Users[user]
	if !ok || !st.Installed {
		return nil, nil, pmerr.New(pmerr.NotInstalled, "%s is not installed.", name)
	}
	if rec.isSystem() {
		return nil, nil, pmerr.New(pmerr.SystemApp, "System apps cannot be archived.")
	}
	if rec.Installer == "" {
		return nil, nil, pmerr.New(pmerr.NoInstaller, "No installer found to archive app %s.", name)
	}
	if _, ok := r.unarchiveReceiverLocked(rec.Installer, user); !ok {
		return nil, nil, pmerr.New(pmerr.InstallerNoUnarchival, "Installer does not support unarchival: %s", rec.Installer)
	}
	if len(r.launcherActivitiesLocked(rec, st)) == 0 {
		return nil, nil, pmerr.New(pmerr.NoMainActivity, "The app %s does not have a main activity.", name)
	}
	if !rec.Manifest.Application.IsArchivable() {
		return nil, nil, pmerr.New(pmerr.OptedOut, "The app %s is opted out of archiving.", name)
	}
	return rec, st, nil
}

// UnarchiveReceiver returns the installer's enabled unarchive receiver.
func (r *Registry) UnarchiveReceiver(installer string, user int) (types.ComponentName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unarchiveReceiverLocked(installer, user)
}

func (r *Registry) unarchiveReceiverLocked(installer string, user int) (types.ComponentName, bool) {
	rec, ok := r.packages[installer]
	if !ok {
		return types.ComponentName{}, false
	}
	st, ok := rec.Users[user]
	if !ok || !st.Installed {
		return types.ComponentName{}, false
	}
	for _, rc := range rec.Manifest.Receivers {
		if rc.Unarchive && rec.componentEnabled(st, rc.Name, rc.IsEnabled()) {
			return types.ComponentName{Package: installer, Class: rc.Name}, true
		}
	}
	return types.ComponentName{}, false
}

func (r *Registry) launcherActivitiesLocked(rec *Record, st *UserState) []apk.Activity {
	var out []apk.Activity
	for _, a := range rec.Manifest.Activities {
		if a.Launcher && rec.componentEnabled(st, a.Name, a.IsEnabled()) {
			out = append(out, a)
		}
	}
	return out
}

// Archive removes a package's code for user while keeping its identity and
// data. Other users are untouched; the code itself is stripped only once
// no user has the package installed. Returns the retained metadata.
func (r *Registry) Archive(name string, user int) (*types.ArchivedPackage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, st, err := r.checkArchivableLocked(name, user)
	if err != nil {
		return nil, err
	}

	meta := types.ArchivedPackage{
		PackageName:          rec.Name,
		VersionCode:          rec.Manifest.VersionCode,
		SigningCertificates:  append([]string(nil), rec.Manifest.Certificates...),
		InstallerPackageName: rec.Installer,
	}
	for _, a := range r.launcherActivitiesLocked(rec, st) {
		title := a.Label
		if title == "" {
			title = rec.Manifest.Application.Label
		}
		if title == "" {
			title = rec.Name
		}
		meta.Activities = append(meta.Activities, types.ArchivedActivity{
			Component: types.ComponentName{Package: rec.Name, Class: a.Name},
			Title:     title,
			Icon:      append([]byte(nil), rec.Icons[a.Icon]...),
		})
	}

	st.Installed = false
	st.Archive = &ArchiveState{Time: r.now(), Metadata: meta}

	if !rec.anyInstalled() && rec.CodePresent {
		if err := r.layout.stripCode(name); err != nil {
			r.logger.Error("failed to strip code", logging.Package(name), zap.Error(err))
		}
		rec.CodePresent = false
	}

	r.rebuildLibrariesLocked()
	r.persistLocked(name)
	r.publish([]broadcast.Broadcast{{
		Action:      broadcast.ActionPackageRemoved,
		PackageName: name,
		UserID:      user,
		Archival:    true,
		Replacing:   true,
	}})

	r.logger.Info("package archived", logging.Package(name), logging.User(user))
	out := st.Archive.Metadata
	return &out, nil
}

// ArchivedPackage returns the archive metadata of a package for user.
func (r *Registry) ArchivedPackage(caller types.Caller, name string, user int) (*types.ArchivedPackage, error) {
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
	if !ok || st.Archive == nil {
		return nil, notFound(name)
	}
	meta := st.clone().Archive.Metadata
	return &meta, nil
}

// ArchivedUsers lists users that have name archived.
func (r *Registry) ArchivedUsers(name string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.packages[name]
	if !ok {
		return nil
	}
	var users []int
	for _, u := range rec.sortedUsers() {
		if rec.Users[u].Archive != nil {
			users = append(users, u)
		}
	}
	return users
}

// Installer returns the recorded installer of name.
func (r *Registry) Installer(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.packages[name]; ok {
		return rec.Installer
	}
	return ""
}
