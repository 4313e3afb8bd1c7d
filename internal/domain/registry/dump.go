package registry

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

const dumpTimeFormat = "2006-01-02 15:04:05"

// Dump renders the `pm dump` text of a package. Callers parse the
// splits=, pkgFlags= and privatePkgFlags= lines.
func (r *Registry) Dump(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.packages[name]
	if !ok {
		return "", notFound(name)
	}
	m := rec.Manifest

	var b strings.Builder
	fmt.Fprintf(&b, "Packages:\n")
	fmt.Fprintf(&b, "  Package [%s]:\n", rec.Name)
	fmt.Fprintf(&b, "    versionCode=%d\n", m.VersionCode)
	if rec.CodePresent {
		fmt.Fprintf(&b, "    codePath=%s\n", rec.CodePath)
	} else {
		fmt.Fprintf(&b, "    codePath=null\n")
	}
	fmt.Fprintf(&b, "    splits=[%s]\n", strings.Join(rec.SplitNames(), ", "))
	fmt.Fprintf(&b, "    installerPackageName=%s\n", orNull(rec.Installer))
	fmt.Fprintf(&b, "    storageUuid=%s\n", rec.StorageUUID)
	fmt.Fprintf(&b, "    lastUpdateTime=%s\n", rec.LastUpdate.Format(dumpTimeFormat))
	fmt.Fprintf(&b, "    pkgFlags=[ %s]\n", flagList(pkgFlags(rec)))
	fmt.Fprintf(&b, "    privatePkgFlags=[ %s]\n", flagList(privatePkgFlags(rec)))
	if m.SdkLibrary != nil {
		fmt.Fprintf(&b, "    sdkLibrary=%s:%d\n", m.SdkLibrary.Name, m.SdkLibrary.Major)
	}
	if len(m.UsesSdkLibraries) > 0 {
		fmt.Fprintf(&b, "    usesSdkLibraries:\n")
		for _, lib := range m.UsesSdkLibraries {
			fmt.Fprintf(&b, "      %s version:%d\n", lib.Name, lib.Major)
		}
	}
	fmt.Fprintf(&b, "    signatures=[%s]\n", strings.Join(m.Certificates, ", "))

	for _, u := range rec.sortedUsers() {
		st := rec.Users[u]
		fmt.Fprintf(&b, "    User %d: installed=%t archived=%t enabled=%s\n",
			u, st.Installed, st.Archive != nil, st.Enabled)
		fmt.Fprintf(&b, "      firstInstallTime=%s\n", st.FirstInstall.Format(dumpTimeFormat))
		if st.Archive != nil {
			fmt.Fprintf(&b, "      archiveTime=%s\n", st.Archive.Time.Format(dumpTimeFormat))
		}
		var disabled []string
		for _, cls := range slices.Sorted(maps.Keys(st.Components)) {
			if st.Components[cls] == types.EnabledStateDisabled {
				disabled = append(disabled, cls)
			}
		}
		if len(disabled) > 0 {
			fmt.Fprintf(&b, "      disabledComponents:\n")
			for _, cls := range disabled {
				fmt.Fprintf(&b, "        %s\n", cls)
			}
		}
	}
	return b.String(), nil
}

func pkgFlags(rec *Record) []string {
	var flags []string
	if rec.isSystem() {
		flags = append(flags, "SYSTEM")
	}
	if rec.Manifest.Application.HasCode == nil || *rec.Manifest.Application.HasCode {
		flags = append(flags, "HAS_CODE")
	}
	return append(flags, "ALLOW_CLEAR_USER_DATA", "ALLOW_BACKUP")
}

func privatePkgFlags(rec *Record) []string {
	flags := []string{"ALLOW_AUDIO_PLAYBACK_CAPTURE"}
	if rec.Manifest.SdkLibrary != nil {
		flags = append(flags, "SDK_LIBRARY")
	}
	if rec.isSystem() {
		flags = append(flags, "PRIVILEGED")
	}
	return flags
}

// flagList renders "A B " so the bracketed form reads "[ A B ]".
func flagList(flags []string) string {
	var b strings.Builder
	for _, f := range flags {
		b.WriteString(f)
		b.WriteByte(' ')
	}
	return b.String()
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
