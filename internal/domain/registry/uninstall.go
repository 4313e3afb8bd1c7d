package registry

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Uninstall removes a package for user (or every user with AllUsers).
//
// With keepData the user's entry stays, marked not installed, and its data
// directories and signing identity survive for a later reinstall. Without
// it the user's entry and data are deleted; removing the last user deletes
// the record outright. Code is stripped once no user has the package
// installed. SDK libraries with dependents cannot lose their last
// installed copy.
func (r *Registry) Uninstall(name string, user int, keepData bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mode := "full"
	if keepData {
		mode = "keep_data"
	}

	rec, ok := r.packages[name]
	if !ok {
		r.metrics.RecordUninstall(mode, "not_found")
		return pmerr.New(pmerr.DeleteFailed, "")
	}

	var users []int
	if user == types.AllUsers {
		users = rec.sortedUsers()
	} else if _, ok := rec.Users[user]; ok {
		users = []int{user}
	}
	if len(users) == 0 {
		r.metrics.RecordUninstall(mode, "not_found")
		return pmerr.New(pmerr.DeleteFailed, "")
	}

	if lib := r.libraryOfLocked(rec); lib != nil && len(lib.dependents) > 0 && !r.survivesLocked(rec, users) {
		r.metrics.RecordUninstall(mode, "used_library")
		return pmerr.New(pmerr.UsedSharedLibrary, "")
	}

	var bcs []broadcast.Broadcast
	for _, u := range users {
		if keepData {
			st := rec.Users[u]
			st.Installed = false
			st.Archive = nil
		} else {
			if err := r.layout.removeDataDirs(name, u); err != nil {
				r.logger.Error("failed to remove data", logging.Package(name), logging.User(u), zap.Error(err))
			}
			delete(rec.Users, u)
		}
		bcs = append(bcs, broadcast.Broadcast{
			Action:      broadcast.ActionPackageRemoved,
			PackageName: name,
			UserID:      u,
			DataRemoved: !keepData,
		})
	}

	if !rec.anyInstalled() && rec.CodePresent {
		if err := r.layout.stripCode(name); err != nil {
			r.logger.Error("failed to strip code", logging.Package(name), zap.Error(err))
		}
		rec.CodePresent = false
	}

	if len(rec.Users) == 0 {
		delete(r.packages, name)
		bcs = append(bcs, broadcast.Broadcast{
			Action:      broadcast.ActionPackageFullyRemoved,
			PackageName: name,
			UserID:      types.AllUsers,
			DataRemoved: true,
		})
	}

	r.rebuildLibrariesLocked()
	r.updateGaugesLocked()
	r.persistLocked(name)
	r.publish(bcs)
	r.metrics.RecordUninstall(mode, "success")

	r.logger.Info("package uninstalled",
		logging.Package(name),
		zap.Ints("users", users),
		zap.Bool("keep_data", keepData))
	return nil
}

// survivesLocked reports whether rec stays installed for some user
// outside of users.
func (r *Registry) survivesLocked(rec *Record, users []int) bool {
	removing := make(map[int]bool, len(users))
	for _, u := range users {
		removing[u] = true
	}
	for u, st := range rec.Users {
		if st.Installed && !removing[u] {
			return true
		}
	}
	return false
}
