package types

import "strings"

// CreateSessionRequest is the HTTP body for session creation.
type CreateSessionRequest struct {
	Mode                 string            `json:"mode"`
	AppPackageName       string            `json:"app_package_name"`
	DontKillApp          bool              `json:"dont_kill_app"`
	AllowDowngrade       bool              `json:"allow_downgrade"`
	DataLoader           *DataLoaderParams `json:"data_loader,omitempty"`
	UserID               int               `json:"user_id"`
	InstallerPackageName string            `json:"installer_package_name"`
	UnarchiveID          int               `json:"unarchive_id"`
}

// Params converts the request into session params. Mode accepts "full",
// "inherit" or the SessionMode names; anything else is a full install.
func (r CreateSessionRequest) Params() SessionParams {
	p := SessionParams{
		AppPackageName:       r.AppPackageName,
		DataLoader:           r.DataLoader,
		UserID:               r.UserID,
		InstallerPackageName: r.InstallerPackageName,
		UnarchiveID:          r.UnarchiveID,
	}
	switch strings.ToUpper(r.Mode) {
	case "INHERIT", "INHERIT_EXISTING":
		p.Mode = ModeInheritExisting
	}
	if r.AllowDowngrade {
		p.InstallFlags |= FlagAllowDowngrade
	}
	if r.DontKillApp {
		p.InstallFlags |= FlagDontKillApp
	}
	return p
}

// AddFileRequest registers a data-loader file with inline metadata.
type AddFileRequest struct {
	Location FileLocation `json:"location"`
	Name     string       `json:"name" binding:"required"`
	Size     int64        `json:"size"`
	Metadata []byte       `json:"metadata"`
}

// ArchiveRequest asks to archive a package for a user.
type ArchiveRequest struct {
	UserID int `json:"user_id"`
}

// UnarchiveRequest asks to restore an archived package.
type UnarchiveRequest struct {
	UserID   int  `json:"user_id"`
	AllUsers bool `json:"all_users"`
}

// StartActivityRequest launches an explicit activity ("pkg/.Class").
type StartActivityRequest struct {
	Component string `json:"component" binding:"required"`
	UserID    int    `json:"user_id"`
}

// UnarchivalStatusRequest reports installer progress on an unarchive.
type UnarchivalStatusRequest struct {
	Status int `json:"status"`
}

// VerificationResponse is a verifier's decision.
type VerificationResponse struct {
	Verifier string `json:"verifier" binding:"required"`
	Allow    bool   `json:"allow"`
}

// ExtendVerificationRequest pushes a verification deadline out.
type ExtendVerificationRequest struct {
	Verifier    string `json:"verifier"`
	Allow       bool   `json:"allow"`
	ExtraMillis int64  `json:"extra_millis"`
}

// EnabledSettingRequest changes an enabled setting.
type EnabledSettingRequest struct {
	UserID int    `json:"user_id"`
	State  string `json:"state" binding:"required"`
	Class  string `json:"class,omitempty"`
}

// ShellRequest runs a pm command line.
type ShellRequest struct {
	Args  []string `json:"args" binding:"required"`
	Stdin []byte   `json:"stdin,omitempty"`
}

// ShellResponse carries the textual command output.
type ShellResponse struct {
	Output string `json:"output"`
}
