package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// sessionFlags are the flags shared by install and install-create.
type sessionFlags struct {
	downgrade   bool
	dontKill    bool
	user        string
	installer   string
	inherit     string
	size        int64
	unarchiveID int
}

func (f *sessionFlags) register(fs *pflag.FlagSet) {
	// Installs always replace; -r parses and is ignored, as in pm.
	fs.BoolP("replace", "r", false, "ignored")
	_ = fs.MarkHidden("replace")
	fs.BoolVarP(&f.downgrade, "downgrade", "d", false, "allow version code downgrade")
	fs.BoolVar(&f.dontKill, "dont-kill", false, "do not kill the app when adding splits")
	fs.StringVar(&f.user, "user", "all", "target user")
	fs.StringVarP(&f.installer, "installer", "i", "", "installer package name")
	fs.StringVarP(&f.inherit, "inherit", "p", "", "add splits to an installed package")
	fs.Int64VarP(&f.size, "size", "S", -1, "total size of stdin content")
	fs.IntVar(&f.unarchiveID, "unarchive-id", 0, "complete an unarchive request")
}

func (f *sessionFlags) params(loader types.DataLoaderType) (types.SessionParams, error) {
	user, err := parseUser(f.user)
	if err != nil {
		return types.SessionParams{}, err
	}
	p := types.SessionParams{
		Mode:                 types.ModeFullInstall,
		UserID:               user,
		InstallerPackageName: f.installer,
		UnarchiveID:          f.unarchiveID,
	}
	if f.inherit != "" {
		p.Mode = types.ModeInheritExisting
		p.AppPackageName = f.inherit
	}
	if f.downgrade {
		p.InstallFlags |= types.FlagAllowDowngrade
	}
	if f.dontKill {
		p.InstallFlags |= types.FlagDontKillApp
	}
	if loader != types.DataLoaderNone {
		p.DataLoader = &types.DataLoaderParams{Type: loader}
	}
	return p, nil
}

// installer builds the single-shot install verbs. Each path becomes one
// staged file; "-" (or no path) reads stdin.
func (r *Runner) installer(loader types.DataLoaderType) command {
	return func(ctx context.Context, args []string, stdin io.Reader) (string, error) {
		var f sessionFlags
		fs := newFlags("install")
		f.register(fs)
		if err := parse(fs, args); err != nil {
			return "", err
		}
		params, err := f.params(loader)
		if err != nil {
			return "", err
		}

		paths := fs.Args()
		if len(paths) == 0 {
			paths = []string{"-"}
		}
		files := make(map[string][]byte, len(paths))
		names := make([]string, 0, len(paths))
		for i, p := range paths {
			data, name, err := r.load(p, stdin, f.size)
			if err != nil {
				return "", err
			}
			if _, dup := files[name]; dup {
				name = fmt.Sprintf("%d_%s", i, name)
			}
			files[name] = data
			names = append(names, name)
		}

		id, err := r.sessions.Create(params)
		if err != nil {
			return "", err
		}
		for _, name := range names {
			if err := r.stage(id, loader, name, files[name]); err != nil {
				_ = r.sessions.Abandon(id)
				return "", err
			}
		}

		res, err := r.sessions.CommitAndWait(ctx, id)
		if err != nil {
			return "", err
		}
		if !res.OK() {
			if err := r.sessions.Abandon(id); err != nil {
				r.logger.Warn("failed to abandon session", logging.Session(id), zap.Error(err))
			}
			return res.StatusMessage + "\n", nil
		}
		return success, nil
	}
}

func (r *Runner) load(path string, stdin io.Reader, size int64) ([]byte, string, error) {
	if path != "-" {
		data, err := r.readFile(path)
		if err != nil {
			return nil, "", pmerr.Wrap(pmerr.InvalidApk, err, "Unable to open file: %s", path)
		}
		return data, filepath.Base(path), nil
	}
	if stdin == nil {
		return nil, "", pmerr.New(pmerr.InvalidSessionParams, "No APK given")
	}
	src := stdin
	if size >= 0 {
		src = io.LimitReader(stdin, size)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", pmerr.Wrap(pmerr.Internal, err, "failed to read stdin")
	}
	return data, "base.apk", nil
}

func (r *Runner) stage(id int, loader types.DataLoaderType, name string, data []byte) error {
	if loader == types.DataLoaderNone {
		_, err := r.sessions.Write(id, name, bytes.NewReader(data))
		return err
	}
	return r.sessions.AddFile(id, types.LocationDataApp, name, int64(len(data)), data)
}

func (r *Runner) installCreate(_ context.Context, args []string, _ io.Reader) (string, error) {
	var f sessionFlags
	fs := newFlags("install-create")
	f.register(fs)
	if err := parse(fs, args); err != nil {
		return "", err
	}
	params, err := f.params(types.DataLoaderNone)
	if err != nil {
		return "", err
	}
	id, err := r.sessions.Create(params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Success: created install session [%d]\n", id), nil
}

func (r *Runner) installWrite(_ context.Context, args []string, stdin io.Reader) (string, error) {
	fs := newFlags("install-write")
	size := fs.Int64P("size", "S", -1, "size of stdin content")
	if err := parse(fs, args); err != nil {
		return "", err
	}
	rest := fs.Args()
	if err := needArgs(rest, 2, "install-write [-S BYTES] SESSION_ID SPLIT_NAME [PATH|-]"); err != nil {
		return "", err
	}
	id, err := parseSessionID(rest[0])
	if err != nil {
		return "", err
	}
	path := "-"
	if len(rest) > 2 {
		path = rest[2]
	}
	data, _, err := r.load(path, stdin, *size)
	if err != nil {
		return "", err
	}
	n, err := r.sessions.Write(id, rest[1], bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Success: streamed %d bytes\n", n), nil
}

func (r *Runner) installRemove(_ context.Context, args []string, _ io.Reader) (string, error) {
	if err := needArgs(args, 2, "install-remove SESSION_ID SPLIT..."); err != nil {
		return "", err
	}
	id, err := parseSessionID(args[0])
	if err != nil {
		return "", err
	}
	for _, name := range args[1:] {
		if err := r.sessions.RemoveFile(id, types.LocationDataApp, name); err != nil {
			return "", err
		}
	}
	return success, nil
}

func (r *Runner) installCommit(ctx context.Context, args []string, _ io.Reader) (string, error) {
	if err := needArgs(args, 1, "install-commit SESSION_ID"); err != nil {
		return "", err
	}
	id, err := parseSessionID(args[0])
	if err != nil {
		return "", err
	}
	res, err := r.sessions.CommitAndWait(ctx, id)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return res.StatusMessage + "\n", nil
	}
	return success, nil
}

func (r *Runner) installAbandon(_ context.Context, args []string, _ io.Reader) (string, error) {
	if err := needArgs(args, 1, "install-abandon SESSION_ID"); err != nil {
		return "", err
	}
	id, err := parseSessionID(args[0])
	if err != nil {
		return "", err
	}
	if err := r.sessions.Abandon(id); err != nil {
		return "", err
	}
	return success, nil
}

func (r *Runner) installExisting(_ context.Context, args []string, _ io.Reader) (string, error) {
	fs := newFlags("install-existing")
	userFlag := fs.String("user", "current", "target user")
	if err := parse(fs, args); err != nil {
		return "", err
	}
	if err := needArgs(fs.Args(), 1, "install-existing [--user USER_ID] PACKAGE"); err != nil {
		return "", err
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		return "", err
	}
	name := fs.Arg(0)
	if err := r.packages.InstallExisting(name, user); err != nil {
		if pmerr.KindOf(err) == pmerr.PackageNotFound {
			return fmt.Sprintf("Package %s doesn't exist\n", name), nil
		}
		return "", err
	}
	return fmt.Sprintf("Package %s installed for user: %d\n", name, user), nil
}
