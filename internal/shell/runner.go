package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Packages is the registry surface the shell drives.
type Packages interface {
	ListPackages(caller types.Caller, user int, flags types.QueryFlags) []types.PackageInfo
	GetPackageInfo(caller types.Caller, name string, user int, flags types.QueryFlags) (*types.PackageInfo, error)
	SharedLibraries() []types.SharedLibraryInfo
	Users() []types.UserInfo
	Dump(name string) (string, error)
	Uninstall(name string, user int, keepData bool) error
	InstallExisting(name string, user int) error
	SetApplicationEnabledSetting(name string, user int, state types.EnabledState) error
	SetComponentEnabledSetting(comp types.ComponentName, user int, state types.EnabledState) error
}

// Sessions is the install session surface the shell drives.
type Sessions interface {
	Create(params types.SessionParams) (int, error)
	Write(id int, name string, r io.Reader) (int64, error)
	AddFile(id int, location types.FileLocation, name string, size int64, metadata []byte) error
	RemoveFile(id int, location types.FileLocation, name string) error
	CommitAndWait(ctx context.Context, id int) (types.Result, error)
	Abandon(id int) error
}

// Archiver archives and unarchives packages.
type Archiver interface {
	Archive(name string, user int, receiver types.StatusReceiver) error
	RequestUnarchive(name string, user int, allUsers bool, receiver types.StatusReceiver) (int, error)
}

// command runs one verb. Returned errors are rendered as Failure lines.
type command func(ctx context.Context, args []string, stdin io.Reader) (string, error)

// Runner executes pm command lines against the package manager. Output
// follows the pm conventions: "Success" on success and
// "Failure [<reason>]" on failure, each newline terminated.
type Runner struct {
	packages Packages
	sessions Sessions
	archive  Archiver
	logger   *zap.Logger
	readFile func(path string) ([]byte, error)
	commands map[string]command
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithFileReader replaces how install reads APK paths.
func WithFileReader(read func(path string) ([]byte, error)) Option {
	return func(r *Runner) { r.readFile = read }
}

// New creates a Runner.
func New(packages Packages, sessions Sessions, archive Archiver, opts ...Option) *Runner {
	r := &Runner{
		packages: packages,
		sessions: sessions,
		archive:  archive,
		logger:   zap.NewNop(),
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.commands = map[string]command{
		"install":             r.installer(types.DataLoaderNone),
		"install-streaming":   r.installer(types.DataLoaderStreaming),
		"install-incremental": r.installer(types.DataLoaderIncremental),
		"install-create":      r.installCreate,
		"install-write":       r.installWrite,
		"install-remove":      r.installRemove,
		"install-commit":      r.installCommit,
		"install-abandon":     r.installAbandon,
		"install-existing":    r.installExisting,
		"uninstall":           r.uninstall,
		"archive":             r.archivePackage,
		"request-unarchive":   r.requestUnarchive,
		"list":                r.list,
		"path":                r.path,
		"dump":                r.dump,
		"enable":              r.setEnabled(types.EnabledStateEnabled),
		"disable":             r.setEnabled(types.EnabledStateDisabled),
		"default-state":       r.setEnabled(types.EnabledDefault),
	}
	return r
}

// Run executes one command line. A leading "pm" is accepted. The output
// is always newline terminated.
func (r *Runner) Run(ctx context.Context, args []string, stdin io.Reader) string {
	if len(args) > 0 && args[0] == "pm" {
		args = args[1:]
	}
	if len(args) == 0 || args[0] == "help" {
		return r.usage()
	}

	cmd, ok := r.commands[args[0]]
	if !ok {
		return fmt.Sprintf("Unknown command: %s\n", args[0])
	}
	out, err := cmd(ctx, args[1:], stdin)
	if err != nil {
		r.logger.Debug("shell command failed", zap.Strings("args", args), zap.Error(err))
		return failure(err)
	}
	return out
}

func (r *Runner) usage() string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Package manager (package) commands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return b.String()
}

func failure(err error) string {
	return pmerr.Failure(err) + "\n"
}

const success = "Success\n"
