package types

import (
	"fmt"
	"strings"
	"time"
)

// ComponentName identifies an activity or receiver within a package.
type ComponentName struct {
	Package string `json:"package"`
	Class   string `json:"class"`
}

// String renders "pkg/cls".
func (c ComponentName) String() string {
	return c.Package + "/" + c.Class
}

// IsZero reports whether the component is unset.
func (c ComponentName) IsZero() bool { return c.Package == "" && c.Class == "" }

// ParseComponentName parses "pkg/cls" or the short form "pkg/.cls".
func ParseComponentName(s string) (ComponentName, error) {
	pkg, cls, ok := strings.Cut(s, "/")
	if !ok || pkg == "" || cls == "" {
		return ComponentName{}, fmt.Errorf("invalid component name %q", s)
	}
	if strings.HasPrefix(cls, ".") {
		cls = pkg + cls
	}
	return ComponentName{Package: pkg, Class: cls}, nil
}

// EnabledState is the per-user enabled setting of an app or component.
// EnabledDefault is distinct from EnabledStateEnabled: it resolves to the
// manifest-declared value at query time.
type EnabledState int

const (
	EnabledDefault EnabledState = iota
	EnabledStateEnabled
	EnabledStateDisabled
)

func (e EnabledState) String() string {
	switch e {
	case EnabledStateEnabled:
		return "ENABLED"
	case EnabledStateDisabled:
		return "DISABLED"
	default:
		return "DEFAULT"
	}
}

// ParseEnabledState is the inverse of String.
func ParseEnabledState(s string) (EnabledState, error) {
	switch strings.ToUpper(s) {
	case "DEFAULT":
		return EnabledDefault, nil
	case "ENABLED":
		return EnabledStateEnabled, nil
	case "DISABLED":
		return EnabledStateDisabled, nil
	}
	return EnabledDefault, fmt.Errorf("unknown enabled state %q", s)
}

// Resolve returns the effective enabled value given the manifest default.
func (e EnabledState) Resolve(manifestDefault bool) bool {
	switch e {
	case EnabledStateEnabled:
		return true
	case EnabledStateDisabled:
		return false
	default:
		return manifestDefault
	}
}

// QueryFlags widen package queries.
type QueryFlags uint32

const (
	// MatchArchived includes packages archived for the user.
	MatchArchived QueryFlags = 1 << iota
	// MatchUninstalled includes packages uninstalled with keep-data, and
	// archived packages.
	MatchUninstalled
)

func (q QueryFlags) Has(f QueryFlags) bool { return q&f == f }

// LibraryRef names an SDK library version.
type LibraryRef struct {
	Name  string `json:"name" yaml:"name"`
	Major int64  `json:"major" yaml:"major"`
	// CertDigest is the expected signer digest (lowercase hex SHA-256)
	// declared by a consumer. Empty on a library's own declaration.
	CertDigest string `json:"cert_digest,omitempty" yaml:"certDigest"`
}

// Key returns "name:major".
func (l LibraryRef) Key() string { return fmt.Sprintf("%s:%d", l.Name, l.Major) }

// ActivityInfo is a resolved activity.
type ActivityInfo struct {
	Component ComponentName `json:"component"`
	Label     string        `json:"label"`
	Launcher  bool          `json:"launcher"`
	Exported  bool          `json:"exported"`
	Enabled   bool          `json:"enabled"`
	// Archived activities are synthesized from archive metadata.
	Archived bool `json:"archived,omitempty"`
}

// ArchivedActivity is the launcher entry kept for an archived app.
type ArchivedActivity struct {
	Component ComponentName `json:"component"`
	Title     string        `json:"title"`
	Icon      []byte        `json:"icon,omitempty"`
}

// ArchivedPackage is the minimal metadata retained for an archived app.
type ArchivedPackage struct {
	PackageName          string             `json:"package_name"`
	VersionCode          int64              `json:"version_code"`
	SigningCertificates  []string           `json:"signing_certificates"`
	InstallerPackageName string             `json:"installer_package_name"`
	Activities           []ArchivedActivity `json:"activities"`
}

// PackageInfo is a per-user view of a package record.
type PackageInfo struct {
	PackageName                string         `json:"package_name"`
	UserID                     int            `json:"user_id"`
	VersionCode                int64          `json:"version_code"`
	SigningCertificates        []string       `json:"signing_certificates"`
	Splits                     []string       `json:"splits"`
	InstallerPackageName       string         `json:"installer_package_name,omitempty"`
	System                     bool           `json:"system"`
	Installed                  bool           `json:"installed"`
	Archived                   bool           `json:"archived"`
	ArchiveTime                time.Time      `json:"archive_time,omitempty"`
	Enabled                    bool           `json:"enabled"`
	EnabledSetting             EnabledState   `json:"enabled_setting"`
	FirstInstallTime           time.Time      `json:"first_install_time"`
	LastUpdateTime             time.Time      `json:"last_update_time"`
	CodePath                   string         `json:"code_path,omitempty"`
	DataDir                    string         `json:"data_dir"`
	DeviceProtectedDataDir     string         `json:"device_protected_data_dir"`
	CredentialProtectedDataDir string         `json:"credential_protected_data_dir"`
	StorageUUID                string         `json:"storage_uuid"`
	SharedLibraries            []LibraryRef   `json:"shared_libraries,omitempty"`
	SdkLibrary                 *LibraryRef    `json:"sdk_library,omitempty"`
	Activities                 []ActivityInfo `json:"activities,omitempty"`
}

// SharedLibraryInfo describes an installed SDK library.
type SharedLibraryInfo struct {
	Name         string       `json:"name"`
	Major        int64        `json:"major"`
	PackageName  string       `json:"package_name"`
	CertDigest   string       `json:"cert_digest"`
	Dependents   []string     `json:"dependents"`
	Dependencies []LibraryRef `json:"dependencies,omitempty"`
	// UnusedSince is when the library last lost its final dependent.
	UnusedSince time.Time `json:"unused_since,omitempty"`
}

// UserInfo describes a device user.
type UserInfo struct {
	ID     int  `json:"id"`
	Hidden bool `json:"hidden"`
}

// Caller identifies who is asking. Callers without CrossProfile cannot
// observe anything in hidden users other than their own.
type Caller struct {
	UserID       int  `json:"user_id"`
	CrossProfile bool `json:"cross_profile"`
}

// SystemCaller sees every user.
var SystemCaller = Caller{UserID: 0, CrossProfile: true}

// StorageStats reports bytes used by a package for one user.
type StorageStats struct {
	CodeBytes int64 `json:"code_bytes"`
	DataBytes int64 `json:"data_bytes"`
}
