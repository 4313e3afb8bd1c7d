package types

import (
	"strings"
	"time"
)

// SessionMode selects how a session's files combine with an installed package.
type SessionMode int

const (
	// ModeFullInstall replaces the package with exactly the session's files.
	ModeFullInstall SessionMode = iota
	// ModeInheritExisting starts from the installed splits and applies the
	// session's additions and tombstones on top.
	ModeInheritExisting
)

func (m SessionMode) String() string {
	if m == ModeInheritExisting {
		return "INHERIT_EXISTING"
	}
	return "FULL_INSTALL"
}

// InstallFlags is the install flag bit-set.
type InstallFlags uint32

const (
	FlagAllowDowngrade InstallFlags = 1 << iota
	FlagDontKillApp
	// FlagUnarchiveDraft marks a placeholder session created by an
	// unarchive request. Its id doubles as the unarchive id.
	FlagUnarchiveDraft
	// FlagUnarchive marks the session that re-materializes an archived app.
	FlagUnarchive
)

var flagNames = []struct {
	flag InstallFlags
	name string
}{
	{FlagAllowDowngrade, "ALLOW_DOWNGRADE"},
	{FlagDontKillApp, "DONT_KILL_APP"},
	{FlagUnarchiveDraft, "UNARCHIVE_DRAFT"},
	{FlagUnarchive, "UNARCHIVE"},
}

// Has reports whether every bit of f is set.
func (fl InstallFlags) Has(f InstallFlags) bool { return fl&f == f }

func (fl InstallFlags) String() string {
	var names []string
	for _, n := range flagNames {
		if fl.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// DataLoaderType describes how session content is delivered.
type DataLoaderType int

const (
	DataLoaderNone DataLoaderType = iota
	DataLoaderStreaming
	DataLoaderIncremental
)

func (t DataLoaderType) String() string {
	switch t {
	case DataLoaderStreaming:
		return "STREAMING"
	case DataLoaderIncremental:
		return "INCREMENTAL"
	default:
		return "NONE"
	}
}

// ParseDataLoaderType is the inverse of String. Unknown values map to NONE.
func ParseDataLoaderType(s string) DataLoaderType {
	switch strings.ToUpper(s) {
	case "STREAMING":
		return DataLoaderStreaming
	case "INCREMENTAL":
		return DataLoaderIncremental
	default:
		return DataLoaderNone
	}
}

// DataLoaderParams configure a streaming or incremental session.
type DataLoaderParams struct {
	Type          DataLoaderType `json:"type"`
	ComponentName ComponentName  `json:"component_name"`
	Arguments     string         `json:"arguments"`
}

// FileLocation is where an added file is staged.
type FileLocation int

const (
	LocationDataApp FileLocation = iota
	LocationMediaObb
	LocationMediaData
)

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	SessionOpen SessionState = iota
	// SessionSealed means a commit is in flight; mutations are refused
	// until the commit succeeds or the session reopens on failure.
	SessionSealed
	SessionCommitted
	SessionAbandoned
)

func (s SessionState) String() string {
	switch s {
	case SessionSealed:
		return "SEALED"
	case SessionCommitted:
		return "COMMITTED"
	case SessionAbandoned:
		return "ABANDONED"
	default:
		return "OPEN"
	}
}

// Terminal reports whether the state can no longer change.
func (s SessionState) Terminal() bool {
	return s == SessionCommitted || s == SessionAbandoned
}

// AllUsers targets every user when used as a session or unarchive user.
const AllUsers = -1

// SessionParams are supplied at session creation.
type SessionParams struct {
	Mode                 SessionMode       `json:"mode"`
	AppPackageName       string            `json:"app_package_name,omitempty"`
	InstallFlags         InstallFlags      `json:"install_flags"`
	DataLoader           *DataLoaderParams `json:"data_loader,omitempty"`
	UserID               int               `json:"user_id"`
	InstallerPackageName string            `json:"installer_package_name,omitempty"`
	// UnarchiveID binds this session to a pending unarchive request.
	UnarchiveID int `json:"unarchive_id,omitempty"`
}

// DataLoaderType returns the configured loader type, NONE when unset.
func (p SessionParams) DataLoaderType() DataLoaderType {
	if p.DataLoader == nil {
		return DataLoaderNone
	}
	return p.DataLoader.Type
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID        int           `json:"id"`
	Params    SessionParams `json:"params"`
	State     SessionState  `json:"state"`
	Names     []string      `json:"names"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	// Result is set once the session reached a terminal state.
	Result *Result `json:"result,omitempty"`
}
