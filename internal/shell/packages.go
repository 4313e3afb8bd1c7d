package shell

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

func (r *Runner) uninstall(_ context.Context, args []string, _ io.Reader) (string, error) {
	fs := newFlags("uninstall")
	keep := fs.BoolP("keep-data", "k", false, "keep the data and cache directories")
	userFlag := fs.String("user", "all", "target user")
	if err := parse(fs, args); err != nil {
		return "", err
	}
	if err := needArgs(fs.Args(), 1, "uninstall [-k] [--user USER_ID] PACKAGE"); err != nil {
		return "", err
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		return "", err
	}
	if err := r.packages.Uninstall(fs.Arg(0), user, *keep); err != nil {
		return "", err
	}
	return success, nil
}

func (r *Runner) archivePackage(_ context.Context, args []string, _ io.Reader) (string, error) {
	fs := newFlags("archive")
	userFlag := fs.String("user", "current", "target user")
	if err := parse(fs, args); err != nil {
		return "", err
	}
	if err := needArgs(fs.Args(), 1, "archive [--user USER_ID] PACKAGE"); err != nil {
		return "", err
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		return "", err
	}
	if err := r.archive.Archive(fs.Arg(0), user, nil); err != nil {
		return "", err
	}
	return success, nil
}

func (r *Runner) requestUnarchive(_ context.Context, args []string, _ io.Reader) (string, error) {
	fs := newFlags("request-unarchive")
	userFlag := fs.String("user", "current", "target user")
	allUsers := fs.Bool("all-users", false, "unarchive for every user")
	if err := parse(fs, args); err != nil {
		return "", err
	}
	if err := needArgs(fs.Args(), 1, "request-unarchive [--user USER_ID] [--all-users] PACKAGE"); err != nil {
		return "", err
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		return "", err
	}
	if _, err := r.archive.RequestUnarchive(fs.Arg(0), user, *allUsers, nil); err != nil {
		return "", err
	}
	return success, nil
}

func (r *Runner) list(_ context.Context, args []string, _ io.Reader) (string, error) {
	if err := needArgs(args, 1, "list packages|sdks|libraries|users"); err != nil {
		return "", err
	}
	switch args[0] {
	case "packages":
		return r.listPackages(args[1:])
	case "sdks":
		return r.listSdks(args[1:], "sdk:%s:%d\n")
	case "libraries":
		return r.listSdks(args[1:], "library:%s:%d\n")
	case "users":
		var b strings.Builder
		b.WriteString("Users:\n")
		for _, u := range r.packages.Users() {
			hidden := ""
			if u.Hidden {
				hidden = " hidden"
			}
			fmt.Fprintf(&b, "\tUserInfo{%d}%s\n", u.ID, hidden)
		}
		return b.String(), nil
	}
	return "", pmerr.New(pmerr.InvalidSessionParams, "Unknown list type: %s", args[0])
}

func (r *Runner) listPackages(args []string) (string, error) {
	fs := newFlags("list packages")
	showPath := fs.BoolP("path", "f", false, "show the code path")
	showInstaller := fs.BoolP("installer", "i", false, "show the installer")
	showVersion := fs.Bool("show-versioncode", false, "show the version code")
	uninstalled := fs.BoolP("uninstalled", "u", false, "include keep-data uninstalls and archives")
	archived := fs.Bool("archived", false, "include archived packages")
	system := fs.BoolP("system", "s", false, "only system packages")
	thirdParty := fs.BoolP("third-party", "3", false, "only third party packages")
	userFlag := fs.String("user", "current", "target user")
	if err := parse(fs, args); err != nil {
		return "", err
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		return "", err
	}
	filter := fs.Arg(0)

	var flags types.QueryFlags
	if *uninstalled {
		flags |= types.MatchUninstalled
	}
	if *archived {
		flags |= types.MatchArchived
	}

	users := []int{user}
	if user == types.AllUsers {
		users = users[:0]
		for _, u := range r.packages.Users() {
			users = append(users, u.ID)
		}
	}

	var b strings.Builder
	seen := make(map[string]bool)
	var infos []types.PackageInfo
	for _, u := range users {
		for _, pi := range r.packages.ListPackages(types.SystemCaller, u, flags) {
			if seen[pi.PackageName] {
				continue
			}
			seen[pi.PackageName] = true
			infos = append(infos, pi)
		}
	}
	slices.SortFunc(infos, func(a, b types.PackageInfo) int { return strings.Compare(a.PackageName, b.PackageName) })

	for _, pi := range infos {
		if (*system && !pi.System) || (*thirdParty && pi.System) {
			continue
		}
		if !matchFilter(filter, pi.PackageName) {
			continue
		}
		b.WriteString("package:")
		if *showPath && pi.CodePath != "" {
			b.WriteString(pi.CodePath + "/base.apk=")
		}
		b.WriteString(pi.PackageName)
		if *showVersion {
			fmt.Fprintf(&b, " versionCode:%d", pi.VersionCode)
		}
		if *showInstaller {
			fmt.Fprintf(&b, "  installer=%s", orNull(pi.InstallerPackageName))
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (r *Runner) listSdks(args []string, format string) (string, error) {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}
	var b strings.Builder
	for _, lib := range r.packages.SharedLibraries() {
		if !matchFilter(filter, lib.Name) {
			continue
		}
		fmt.Fprintf(&b, format, lib.Name, lib.Major)
	}
	return b.String(), nil
}

// matchFilter treats filters with glob syntax as doublestar patterns and
// anything else as a substring.
func matchFilter(filter, name string) bool {
	if filter == "" {
		return true
	}
	if strings.ContainsAny(filter, "*?[{") {
		ok, err := doublestar.Match(filter, name)
		return err == nil && ok
	}
	return strings.Contains(name, filter)
}

func (r *Runner) path(_ context.Context, args []string, _ io.Reader) (string, error) {
	fs := newFlags("path")
	userFlag := fs.String("user", "current", "target user")
	if err := parse(fs, args); err != nil {
		return "", err
	}
	if err := needArgs(fs.Args(), 1, "path [--user USER_ID] PACKAGE"); err != nil {
		return "", err
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		return "", err
	}
	pi, err := r.packages.GetPackageInfo(types.SystemCaller, fs.Arg(0), user, 0)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, split := range pi.Splits {
		file := "base.apk"
		if split != "base" {
			file = "split_" + split + ".apk"
		}
		fmt.Fprintf(&b, "package:%s/%s\n", pi.CodePath, file)
	}
	return b.String(), nil
}

func (r *Runner) dump(_ context.Context, args []string, _ io.Reader) (string, error) {
	if err := needArgs(args, 1, "dump PACKAGE"); err != nil {
		return "", err
	}
	out, err := r.packages.Dump(args[0])
	if err != nil {
		return fmt.Sprintf("Unable to find package: %s\n", args[0]), nil
	}
	return out, nil
}

func (r *Runner) setEnabled(state types.EnabledState) command {
	return func(_ context.Context, args []string, _ io.Reader) (string, error) {
		fs := newFlags("enable")
		userFlag := fs.String("user", "current", "target user")
		if err := parse(fs, args); err != nil {
			return "", err
		}
		if err := needArgs(fs.Args(), 1, "enable|disable|default-state [--user USER_ID] PACKAGE_OR_COMPONENT"); err != nil {
			return "", err
		}
		user, err := parseUser(*userFlag)
		if err != nil {
			return "", err
		}
		label := strings.ToLower(state.String())

		target := fs.Arg(0)
		if !strings.Contains(target, "/") {
			if err := r.packages.SetApplicationEnabledSetting(target, user, state); err != nil {
				return "", err
			}
			return fmt.Sprintf("Package %s new state: %s\n", target, label), nil
		}
		comp, err := types.ParseComponentName(target)
		if err != nil {
			return "", pmerr.Wrap(pmerr.InvalidSessionParams, err, "Bad component")
		}
		if err := r.packages.SetComponentEnabledSetting(comp, user, state); err != nil {
			return "", err
		}
		return fmt.Sprintf("Component {%s} new state: %s\n", comp, label), nil
	}
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
