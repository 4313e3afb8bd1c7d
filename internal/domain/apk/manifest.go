package apk

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/utils"
)

// ManifestEntry is the manifest's path inside the archive.
const ManifestEntry = "AndroidManifest.yml"

// BaseSplit is the name of the mandatory split.
const BaseSplit = "base"

// Manifest is the package descriptor carried by every APK.
type Manifest struct {
	Package          string             `yaml:"package"`
	VersionCode      int64              `yaml:"versionCode"`
	Split            string             `yaml:"split,omitempty"`
	Certificates     []string           `yaml:"certificates"`
	Application      Application        `yaml:"application"`
	Activities       []Activity         `yaml:"activities,omitempty"`
	Receivers        []Receiver         `yaml:"receivers,omitempty"`
	SdkLibrary       *types.LibraryRef  `yaml:"sdkLibrary,omitempty"`
	UsesSdkLibraries []types.LibraryRef `yaml:"usesSdkLibraries,omitempty"`
	// Verifiers lists sufficient verifier packages for this app.
	Verifiers []string `yaml:"verifiers,omitempty"`
}

// Application holds app-wide attributes. Nil booleans take their defaults.
type Application struct {
	Label      string `yaml:"label,omitempty"`
	Enabled    *bool  `yaml:"enabled,omitempty"`
	System     bool   `yaml:"system,omitempty"`
	Archivable *bool  `yaml:"archivable,omitempty"`
	HasCode    *bool  `yaml:"hasCode,omitempty"`
}

// Activity declares an activity component.
type Activity struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label,omitempty"`
	Icon     string `yaml:"icon,omitempty"`
	Launcher bool   `yaml:"launcher,omitempty"`
	Exported bool   `yaml:"exported,omitempty"`
	Enabled  *bool  `yaml:"enabled,omitempty"`
}

// Receiver declares a broadcast receiver. A receiver with Unarchive set
// handles unarchive requests for apps this package installed.
type Receiver struct {
	Name      string `yaml:"name"`
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Unarchive bool   `yaml:"unarchive,omitempty"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Bool returns a pointer to b, for building manifests.
func Bool(b bool) *bool { return &b }

// IsEnabled is the manifest default for the application.
func (a Application) IsEnabled() bool { return boolOr(a.Enabled, true) }

// IsArchivable reports whether the app opted in to archiving (default true).
func (a Application) IsArchivable() bool { return boolOr(a.Archivable, true) }

// IsEnabled is the manifest default for the activity.
func (a Activity) IsEnabled() bool { return boolOr(a.Enabled, true) }

// IsEnabled is the manifest default for the receiver.
func (r Receiver) IsEnabled() bool { return boolOr(r.Enabled, true) }

// SplitName returns the split name, "base" for the base APK.
func (m *Manifest) SplitName() string {
	if m.Split == "" {
		return BaseSplit
	}
	return m.Split
}

// InstalledName is the package name the registry uses. SDK libraries are
// installed under "<package>_<major>" so majors coexist.
func (m *Manifest) InstalledName() string {
	if m.SdkLibrary != nil {
		return fmt.Sprintf("%s_%d", m.Package, m.SdkLibrary.Major)
	}
	return m.Package
}

// ClassName resolves a declared component name against the package.
func (m *Manifest) ClassName(name string) string {
	switch {
	case strings.HasPrefix(name, "."):
		return m.Package + name
	case !strings.Contains(name, "."):
		return m.Package + "." + name
	default:
		return name
	}
}

// Signer returns the current signing certificate (last in history).
func (m *Manifest) Signer() string {
	if len(m.Certificates) == 0 {
		return ""
	}
	return m.Certificates[len(m.Certificates)-1]
}

// CertDigest is the lowercase hex SHA-256 of a certificate.
func CertDigest(cert string) string {
	return utils.DefaultHasher().HashString(cert)
}
