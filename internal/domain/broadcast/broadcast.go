package broadcast

import (
	"time"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/id"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Action names a broadcast. Values match the platform intent actions so
// external receivers can key on them unchanged.
type Action string

const (
	ActionPackageAdded             Action = "android.intent.action.PACKAGE_ADDED"
	ActionPackageReplaced          Action = "android.intent.action.PACKAGE_REPLACED"
	ActionPackageRemoved           Action = "android.intent.action.PACKAGE_REMOVED"
	ActionPackageFullyRemoved      Action = "android.intent.action.PACKAGE_FULLY_REMOVED"
	ActionPackageChanged           Action = "android.intent.action.PACKAGE_CHANGED"
	ActionPackageNeedsVerification Action = "android.intent.action.PACKAGE_NEEDS_VERIFICATION"
	ActionPackageVerified          Action = "android.intent.action.PACKAGE_VERIFIED"
	ActionUnarchivePackage         Action = "android.intent.action.UNARCHIVE_PACKAGE"
	ActionSessionCreated           Action = "android.content.pm.action.SESSION_CREATED"
	ActionSessionFinished          Action = "android.content.pm.action.SESSION_FINISHED"
	ActionUnarchiveErrorDialog     Action = "com.android.intent.action.UNARCHIVE_ERROR_DIALOG"
)

// Broadcast is one published event. Fields beyond Action and PackageName
// are populated only for the actions that carry them.
type Broadcast struct {
	ID          id.BroadcastID `json:"id"`
	Action      Action         `json:"action"`
	PackageName string         `json:"package_name,omitempty"`
	UserID      int            `json:"user_id"`
	// Target restricts delivery to receivers in this package (the
	// installer for UNARCHIVE_PACKAGE, verifiers for NEEDS_VERIFICATION).
	Target string    `json:"target,omitempty"`
	Time   time.Time `json:"time"`

	Replacing   bool `json:"replacing,omitempty"`
	Archival    bool `json:"archival,omitempty"`
	DataRemoved bool `json:"data_removed,omitempty"`

	AllUsers    bool `json:"all_users,omitempty"`
	UnarchiveID int  `json:"unarchive_id,omitempty"`

	SessionID      int                  `json:"session_id,omitempty"`
	Success        bool                 `json:"success,omitempty"`
	VerificationID int                  `json:"verification_id,omitempty"`
	DataLoaderType types.DataLoaderType `json:"data_loader_type,omitempty"`
	RootHash       string               `json:"root_hash,omitempty"`

	Components []string `json:"components,omitempty"`
}

// Filter selects broadcasts for a subscription. A nil Filter matches all.
type Filter func(Broadcast) bool

// Actions matches any of the given actions.
func Actions(actions ...Action) Filter {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return func(b Broadcast) bool {
		_, ok := set[b.Action]
		return ok
	}
}

// ForPackage matches broadcasts about pkg.
func ForPackage(pkg string) Filter {
	return func(b Broadcast) bool { return b.PackageName == pkg }
}

// ForTarget matches broadcasts addressed to pkg or addressed to nobody.
func ForTarget(pkg string) Filter {
	return func(b Broadcast) bool { return b.Target == "" || b.Target == pkg }
}

// And combines filters.
func And(filters ...Filter) Filter {
	return func(b Broadcast) bool {
		for _, f := range filters {
			if f != nil && !f(b) {
				return false
			}
		}
		return true
	}
}
