// Package pmerr defines the operation-scoped error taxonomy shared by every
// package manager component.
//
// Each error carries a Kind for programmatic matching with errors.Is and a
// stable textual Code (INSTALL_FAILED_*, DELETE_FAILED_*) that callers parse
// out of status messages and shell output.
package pmerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	Internal Kind = iota
	SessionNotFound
	InvalidSessionParams
	SessionSealed
	MissingSharedLibrary
	SignatureMismatch
	VersionDowngrade
	InvalidApk
	NotApk
	NoInstaller
	InstallerNoUnarchival
	NoMainActivity
	SystemApp
	OptedOut
	NotInstalled
	VerificationRejected
	Aborted
	UsedSharedLibrary
	DeleteFailed
	PackageNotFound
	ActivityNotFound
	UserNotFound
	VerificationNotFound
	NotArchived
)

var kindNames = map[Kind]string{
	Internal:              "Internal",
	SessionNotFound:       "SessionNotFound",
	InvalidSessionParams:  "InvalidSessionParams",
	SessionSealed:         "SessionSealed",
	MissingSharedLibrary:  "MissingSharedLibrary",
	SignatureMismatch:     "SignatureMismatch",
	VersionDowngrade:      "VersionDowngrade",
	InvalidApk:            "InvalidApk",
	NotApk:                "NotApk",
	NoInstaller:           "NoInstaller",
	InstallerNoUnarchival: "InstallerNoUnarchival",
	NoMainActivity:        "NoMainActivity",
	SystemApp:             "SystemApp",
	OptedOut:              "OptedOut",
	NotInstalled:          "NotInstalled",
	VerificationRejected:  "VerificationRejected",
	Aborted:               "Aborted",
	UsedSharedLibrary:     "UsedSharedLibrary",
	DeleteFailed:          "DeleteFailed",
	PackageNotFound:       "PackageNotFound",
	ActivityNotFound:      "ActivityNotFound",
	UserNotFound:          "UserNotFound",
	VerificationNotFound:  "VerificationNotFound",
	NotArchived:           "NotArchived",
}

// codes are the stable status prefixes. Kinds without a code render their
// message bare.
var codes = map[Kind]string{
	Internal:             "INSTALL_FAILED_INTERNAL_ERROR",
	MissingSharedLibrary: "INSTALL_FAILED_MISSING_SHARED_LIBRARY",
	SignatureMismatch:    "INSTALL_FAILED_UPDATE_INCOMPATIBLE",
	VersionDowngrade:     "INSTALL_FAILED_VERSION_DOWNGRADE",
	InvalidApk:           "INSTALL_FAILED_INVALID_APK",
	NotApk:               "INSTALL_PARSE_FAILED_NOT_APK",
	VerificationRejected: "INSTALL_FAILED_VERIFICATION_FAILURE",
	Aborted:              "INSTALL_FAILED_ABORTED",
	UsedSharedLibrary:    "DELETE_FAILED_USED_SHARED_LIBRARY",
	DeleteFailed:         "DELETE_FAILED_INTERNAL_ERROR",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Code returns the stable status code for the kind, if any.
func (k Kind) Code() string {
	return codes[k]
}

// Error is a classified package manager failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrSessionNotFound       = &Error{Kind: SessionNotFound}
	ErrInvalidSessionParams  = &Error{Kind: InvalidSessionParams}
	ErrSessionSealed         = &Error{Kind: SessionSealed}
	ErrMissingSharedLibrary  = &Error{Kind: MissingSharedLibrary}
	ErrSignatureMismatch     = &Error{Kind: SignatureMismatch}
	ErrVersionDowngrade      = &Error{Kind: VersionDowngrade}
	ErrInvalidApk            = &Error{Kind: InvalidApk}
	ErrNotApk                = &Error{Kind: NotApk}
	ErrNoInstaller           = &Error{Kind: NoInstaller}
	ErrInstallerNoUnarchival = &Error{Kind: InstallerNoUnarchival}
	ErrNoMainActivity        = &Error{Kind: NoMainActivity}
	ErrSystemApp             = &Error{Kind: SystemApp}
	ErrOptedOut              = &Error{Kind: OptedOut}
	ErrNotInstalled          = &Error{Kind: NotInstalled}
	ErrVerificationRejected  = &Error{Kind: VerificationRejected}
	ErrAborted               = &Error{Kind: Aborted}
	ErrUsedSharedLibrary     = &Error{Kind: UsedSharedLibrary}
	ErrDeleteFailed          = &Error{Kind: DeleteFailed}
	ErrPackageNotFound       = &Error{Kind: PackageNotFound}
	ErrActivityNotFound      = &Error{Kind: ActivityNotFound}
	ErrUserNotFound          = &Error{Kind: UserNotFound}
	ErrVerificationNotFound  = &Error{Kind: VerificationNotFound}
	ErrNotArchived           = &Error{Kind: NotArchived}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	code := e.Kind.Code()
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	switch {
	case code != "" && msg != "":
		return code + ": " + msg
	case code != "":
		return code
	case msg != "":
		return msg
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Failure renders the shell/status form "Failure [CODE: message]".
func (e *Error) Failure() string {
	return "Failure [" + e.Error() + "]"
}

// KindOf extracts the kind of err, Internal when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Failure renders any error in shell form. Unclassified errors are
// reported as internal failures.
func Failure(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Failure()
	}
	return Wrap(Internal, err, "").Failure()
}

// Message returns the status message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
