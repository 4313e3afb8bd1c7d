package archive

// UnarchivalStatus is an installer's progress report on an unarchive.
type UnarchivalStatus int

const (
	UnarchivalOK                        UnarchivalStatus = 0
	UnarchivalErrorUserActionNeeded     UnarchivalStatus = 1
	UnarchivalErrorInsufficientStorage  UnarchivalStatus = 2
	UnarchivalErrorNoConnectivity       UnarchivalStatus = 3
	UnarchivalErrorInstallerDisabled    UnarchivalStatus = 4
	UnarchivalErrorInstallerUninstalled UnarchivalStatus = 5
	UnarchivalGenericError              UnarchivalStatus = 100
)

func (s UnarchivalStatus) String() string {
	switch s {
	case UnarchivalOK:
		return "OK"
	case UnarchivalErrorUserActionNeeded:
		return "USER_ACTION_NEEDED"
	case UnarchivalErrorInsufficientStorage:
		return "INSUFFICIENT_STORAGE"
	case UnarchivalErrorNoConnectivity:
		return "NO_CONNECTIVITY"
	case UnarchivalErrorInstallerDisabled:
		return "INSTALLER_DISABLED"
	case UnarchivalErrorInstallerUninstalled:
		return "INSTALLER_UNINSTALLED"
	default:
		return "GENERIC_ERROR"
	}
}

// Valid reports whether s is a known status.
func (s UnarchivalStatus) Valid() bool {
	switch s {
	case UnarchivalOK, UnarchivalErrorUserActionNeeded, UnarchivalErrorInsufficientStorage,
		UnarchivalErrorNoConnectivity, UnarchivalErrorInstallerDisabled,
		UnarchivalErrorInstallerUninstalled, UnarchivalGenericError:
		return true
	}
	return false
}

func (s UnarchivalStatus) message(pkg string) string {
	switch s {
	case UnarchivalErrorUserActionNeeded:
		return "Unarchival of " + pkg + " needs user action"
	case UnarchivalErrorInsufficientStorage:
		return "Not enough storage to unarchive " + pkg
	case UnarchivalErrorNoConnectivity:
		return "No connectivity to unarchive " + pkg
	case UnarchivalErrorInstallerDisabled:
		return "Installer of " + pkg + " is disabled"
	case UnarchivalErrorInstallerUninstalled:
		return "Installer of " + pkg + " is uninstalled"
	default:
		return "Failed to unarchive " + pkg
	}
}
