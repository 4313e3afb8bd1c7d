package registry

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// library is an installed SDK library version and who depends on it.
type library struct {
	ref          types.LibraryRef
	pkg          string
	certDigest   string
	dependencies []types.LibraryRef
	dependents   map[string]struct{}
	unusedSince  time.Time
}

// rebuildLibrariesLocked derives the library graph from the records. The
// time a library last lost its final dependent survives rebuilds.
func (r *Registry) rebuildLibrariesLocked() {
	prev := r.libraries
	libs := make(map[string]*library)

	for _, rec := range r.packages {
		lib := rec.Manifest.SdkLibrary
		if lib == nil || !rec.CodePresent || !rec.anyInstalled() {
			continue
		}
		ref := types.LibraryRef{Name: lib.Name, Major: lib.Major}
		libs[ref.Key()] = &library{
			ref:          ref,
			pkg:          rec.Name,
			certDigest:   apk.CertDigest(rec.Manifest.Signer()),
			dependencies: append([]types.LibraryRef(nil), rec.Manifest.UsesSdkLibraries...),
			dependents:   make(map[string]struct{}),
		}
	}

	for _, rec := range r.packages {
		for _, dep := range rec.Manifest.UsesSdkLibraries {
			if lib, ok := libs[types.LibraryRef{Name: dep.Name, Major: dep.Major}.Key()]; ok {
				lib.dependents[rec.Name] = struct{}{}
			}
		}
	}

	now := r.now()
	for key, lib := range libs {
		if len(lib.dependents) > 0 {
			continue
		}
		if old, ok := prev[key]; ok && !old.unusedSince.IsZero() {
			lib.unusedSince = old.unusedSince
		} else {
			lib.unusedSince = now
		}
	}

	r.libraries = libs
}

func (r *Registry) resolveLibraryLocked(consumer string, dep types.LibraryRef) error {
	lib, ok := r.libraries[types.LibraryRef{Name: dep.Name, Major: dep.Major}.Key()]
	if !ok {
		return pmerr.New(pmerr.MissingSharedLibrary, "Package %s requires unavailable sdk library %s:%d; failing!",
			consumer, dep.Name, dep.Major)
	}
	if dep.CertDigest == "" || dep.CertDigest == lib.certDigest {
		return nil
	}
	if r.sdkOverride != "" && dep.CertDigest == r.sdkOverride {
		return nil
	}
	return pmerr.New(pmerr.MissingSharedLibrary, "Package %s requires differently signed sdk library %s:%d; failing!",
		consumer, dep.Name, dep.Major)
}

// SharedLibraries lists installed SDK libraries sorted by name and major.
func (r *Registry) SharedLibraries() []types.SharedLibraryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.SharedLibraryInfo, 0, len(r.libraries))
	for _, lib := range r.libraries {
		out = append(out, lib.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Major < out[j].Major
	})
	return out
}

// SharedLibrary looks up one library version.
func (r *Registry) SharedLibrary(name string, major int64) (types.SharedLibraryInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lib, ok := r.libraries[types.LibraryRef{Name: name, Major: major}.Key()]
	if !ok {
		return types.SharedLibraryInfo{}, false
	}
	return lib.info(), true
}

func (l *library) info() types.SharedLibraryInfo {
	deps := make([]string, 0, len(l.dependents))
	for d := range l.dependents {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return types.SharedLibraryInfo{
		Name:         l.ref.Name,
		Major:        l.ref.Major,
		PackageName:  l.pkg,
		CertDigest:   l.certDigest,
		Dependents:   deps,
		Dependencies: append([]types.LibraryRef(nil), l.dependencies...),
		UnusedSince:  l.unusedSince,
	}
}

// libraryOfLocked returns the library a package provides, if any.
func (r *Registry) libraryOfLocked(rec *Record) *library {
	if rec.Manifest.SdkLibrary == nil {
		return nil
	}
	lib, ok := r.libraries[types.LibraryRef{Name: rec.Manifest.SdkLibrary.Name, Major: rec.Manifest.SdkLibrary.Major}.Key()]
	if !ok || lib.pkg != rec.Name {
		return nil
	}
	return lib
}

// PruneUnusedLibraries fully uninstalls non-system SDK libraries that have
// had no dependents for longer than grace. It returns the pruned packages.
func (r *Registry) PruneUnusedLibraries(grace time.Duration) []string {
	r.mu.Lock()
	now := r.now()
	var victims []string
	for _, lib := range r.libraries {
		if len(lib.dependents) > 0 || lib.unusedSince.IsZero() {
			continue
		}
		rec := r.packages[lib.pkg]
		if rec == nil || rec.isSystem() {
			continue
		}
		if now.Sub(lib.unusedSince) >= grace {
			victims = append(victims, lib.pkg)
		}
	}
	r.mu.Unlock()

	sort.Strings(victims)
	var pruned []string
	for _, pkg := range victims {
		if err := r.Uninstall(pkg, types.AllUsers, false); err != nil {
			r.logger.Warn("failed to prune sdk library", logging.Package(pkg), zap.Error(err))
			continue
		}
		pruned = append(pruned, pkg)
	}
	if len(pruned) > 0 {
		r.logger.Info("pruned unused sdk libraries", logging.Packages(pruned))
	}
	return pruned
}
