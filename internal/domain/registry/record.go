package registry

import (
	"maps"
	"sort"
	"time"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Record is the authoritative state of one package across all users.
// Records are persisted as-is; only the registry mutates them.
type Record struct {
	Name        string               `json:"name"`
	Manifest    apk.Manifest         `json:"manifest"`
	Splits      map[string]SplitFile `json:"splits"`
	Installer   string               `json:"installer,omitempty"`
	CodePath    string               `json:"code_path"`
	CodePresent bool                 `json:"code_present"`
	StorageUUID string               `json:"storage_uuid"`
	Icons       map[string][]byte    `json:"icons,omitempty"`
	Users       map[int]*UserState   `json:"users"`
	LastUpdate  time.Time            `json:"last_update"`
	// Restarts counts commits that killed the running app.
	Restarts int `json:"restarts"`
}

// SplitFile is one installed APK of a package.
type SplitFile struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// UserState is a package's state for one user. A record keeps a user entry
// while the user has the package installed, archived, or uninstalled with
// its data kept.
type UserState struct {
	Installed    bool                          `json:"installed"`
	Archive      *ArchiveState                 `json:"archive,omitempty"`
	Enabled      types.EnabledState            `json:"enabled"`
	Components   map[string]types.EnabledState `json:"components,omitempty"`
	FirstInstall time.Time                     `json:"first_install"`
}

// ArchiveState is kept while a package is archived for a user.
type ArchiveState struct {
	Time     time.Time             `json:"time"`
	Metadata types.ArchivedPackage `json:"metadata"`
}

func (r *Record) clone() *Record {
	c := *r
	c.Manifest = cloneManifest(r.Manifest)
	c.Splits = maps.Clone(r.Splits)
	c.Icons = maps.Clone(r.Icons)
	c.Users = make(map[int]*UserState, len(r.Users))
	for u, st := range r.Users {
		c.Users[u] = st.clone()
	}
	return &c
}

func (s *UserState) clone() *UserState {
	c := *s
	c.Components = maps.Clone(s.Components)
	if s.Archive != nil {
		a := *s.Archive
		a.Metadata.Activities = append([]types.ArchivedActivity(nil), s.Archive.Metadata.Activities...)
		a.Metadata.SigningCertificates = append([]string(nil), s.Archive.Metadata.SigningCertificates...)
		c.Archive = &a
	}
	return &c
}

func cloneManifest(m apk.Manifest) apk.Manifest {
	c := m
	c.Certificates = append([]string(nil), m.Certificates...)
	c.Activities = append([]apk.Activity(nil), m.Activities...)
	c.Receivers = append([]apk.Receiver(nil), m.Receivers...)
	c.UsesSdkLibraries = append([]types.LibraryRef(nil), m.UsesSdkLibraries...)
	c.Verifiers = append([]string(nil), m.Verifiers...)
	if m.SdkLibrary != nil {
		lib := *m.SdkLibrary
		c.SdkLibrary = &lib
	}
	return c
}

// SplitNames returns split names with base first and the rest sorted.
func (r *Record) SplitNames() []string {
	names := make([]string, 0, len(r.Splits))
	for name := range r.Splits {
		if name != apk.BaseSplit {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := r.Splits[apk.BaseSplit]; ok {
		names = append([]string{apk.BaseSplit}, names...)
	}
	return names
}

// Files returns split file names in SplitNames order.
func (r *Record) Files() []string {
	names := r.SplitNames()
	files := make([]string, len(names))
	for i, n := range names {
		files[i] = r.Splits[n].File
	}
	return files
}

// anyInstalled reports whether some user has the package installed.
func (r *Record) anyInstalled() bool {
	for _, st := range r.Users {
		if st.Installed {
			return true
		}
	}
	return false
}

func (r *Record) sortedUsers() []int {
	users := make([]int, 0, len(r.Users))
	for u := range r.Users {
		users = append(users, u)
	}
	sort.Ints(users)
	return users
}

func (r *Record) isSystem() bool { return r.Manifest.Application.System }

func (r *Record) activity(class string) (apk.Activity, bool) {
	for _, a := range r.Manifest.Activities {
		if a.Name == class {
			return a, true
		}
	}
	return apk.Activity{}, false
}

func (r *Record) hasComponent(class string) bool {
	if _, ok := r.activity(class); ok {
		return true
	}
	for _, rc := range r.Manifest.Receivers {
		if rc.Name == class {
			return true
		}
	}
	return false
}

// componentEnabled resolves a component for a user. A disabled
// application disables every component.
func (r *Record) componentEnabled(st *UserState, class string, manifestDefault bool) bool {
	if !st.Enabled.Resolve(r.Manifest.Application.IsEnabled()) {
		return false
	}
	return st.Components[class].Resolve(manifestDefault)
}
