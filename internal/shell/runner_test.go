package shell_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/archive"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/session"
	"github.com/GriffinCanCode/pkgmgr/internal/shell"
	"github.com/GriffinCanCode/pkgmgr/internal/testutil"
)

const appPkg = "com.example.app"

type fixture struct {
	runner *shell.Runner
	files  map[string][]byte
	ctx    context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := broadcast.NewBus()
	reg := registry.New(t.TempDir(), bus)
	sessions := session.NewManager(reg, bus)
	archiver := archive.NewManager(reg, sessions, bus)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(func() {
		cancel()
		archiver.Close()
		sessions.Close()
		bus.Close()
	})

	f := &fixture{files: make(map[string][]byte), ctx: ctx}
	f.runner = shell.New(reg, sessions, archiver, shell.WithFileReader(func(path string) ([]byte, error) {
		data, ok := f.files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return data, nil
	}))
	return f
}

// put registers m under a fake path and returns the path.
func (f *fixture) put(t *testing.T, m apk.Manifest) string {
	t.Helper()
	path := fmt.Sprintf("/data/local/tmp/%s-%d-%s", m.Package, m.VersionCode, testutil.FileName(m))
	f.files[path] = testutil.Build(t, m)
	return path
}

func (f *fixture) run(args ...string) string {
	return f.runner.Run(f.ctx, args, nil)
}

func splitsLine(t *testing.T, dump string) string {
	t.Helper()
	m := regexp.MustCompile(`(?m)^\s+splits=\[(.*)\]$`).FindStringSubmatch(dump)
	require.Len(t, m, 2, dump)
	return m[1]
}

func TestInstallSplitsScenario(t *testing.T) {
	f := newFixture(t)
	base := testutil.App(appPkg, 1)

	assert.Equal(t, "Success\n", f.run("pm", "install", f.put(t, base)))
	assert.Equal(t, "base", splitsLine(t, f.run("pm", "dump", appPkg)))

	assert.Equal(t, "Success\n", f.run("pm", "install", "-p", appPkg, f.put(t, testutil.Split(base, "config.hdpi"))))
	assert.Equal(t, "base, config.hdpi", splitsLine(t, f.run("pm", "dump", appPkg)))

	out := f.run("pm", "install-create", "-p", appPkg)
	id := regexp.MustCompile(`\[(\d+)\]`).FindStringSubmatch(out)
	require.Len(t, id, 2, out)
	assert.Equal(t, "Success\n", f.run("pm", "install-remove", id[1], "config.hdpi"))
	assert.Equal(t, "Success\n", f.run("pm", "install-commit", id[1]))
	assert.Equal(t, "base", splitsLine(t, f.run("pm", "dump", appPkg)))

	dump := f.run("pm", "dump", appPkg)
	assert.Contains(t, dump, "pkgFlags=[ HAS_CODE ALLOW_CLEAR_USER_DATA ALLOW_BACKUP ]")
	assert.Contains(t, dump, "privatePkgFlags=[ ")
}

func TestInstallSessionVerbs(t *testing.T) {
	f := newFixture(t)
	data := testutil.Build(t, testutil.App(appPkg, 1))

	out := f.run("install-create")
	require.True(t, strings.HasPrefix(out, "Success: created install session ["), out)
	id := regexp.MustCompile(`\[(\d+)\]`).FindStringSubmatch(out)[1]

	out = f.runner.Run(f.ctx, []string{"install-write", "-S", fmt.Sprint(len(data)), id, "base.apk", "-"}, bytes.NewReader(data))
	assert.Equal(t, fmt.Sprintf("Success: streamed %d bytes\n", len(data)), out)
	assert.Equal(t, "Success\n", f.run("install-commit", id))
	assert.Equal(t, "package:com.example.app\n", f.run("list", "packages"))

	out = f.run("install-create")
	id = regexp.MustCompile(`\[(\d+)\]`).FindStringSubmatch(out)[1]
	assert.Equal(t, "Success\n", f.run("install-abandon", id))
	assert.True(t, strings.HasPrefix(f.run("install-commit", id), "Failure ["))
	assert.True(t, strings.HasPrefix(f.run("install-commit", "nope"), "Failure [Bad session id"))
}

func TestInstallFailures(t *testing.T) {
	f := newFixture(t)
	consumer := testutil.Uses(testutil.App(appPkg, 1), "com.example.sdk", 1)

	out := f.run("install", f.put(t, consumer))
	assert.True(t, strings.HasPrefix(out, "Failure [INSTALL_FAILED_MISSING_SHARED_LIBRARY"), out)
	assert.Equal(t, "", f.run("list", "packages"))

	assert.Equal(t, "Success\n", f.run("install", f.put(t, testutil.App(appPkg, 2))))
	out = f.run("install", f.put(t, testutil.App(appPkg, 1)))
	assert.True(t, strings.HasPrefix(out, "Failure [INSTALL_FAILED_VERSION_DOWNGRADE"), out)
	assert.Equal(t, "Success\n", f.run("install", "-d", f.put(t, testutil.App(appPkg, 1))))

	out = f.run("install", "/missing.apk")
	assert.True(t, strings.HasPrefix(out, "Failure [INSTALL_FAILED_INVALID_APK: Unable to open file"), out)
}

func TestStreamingAndIncremental(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Success\n", f.run("install-streaming", f.put(t, testutil.App(appPkg, 1))))
	assert.Equal(t, "Success\n", f.run("install-incremental", f.put(t, testutil.App("com.example.other", 1))))
	assert.Equal(t, "package:com.example.app\npackage:com.example.other\n", f.run("list", "packages"))
}

func TestUninstall(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "Success\n", f.run("install", f.put(t, testutil.App(appPkg, 1))))

	assert.Equal(t, "Success\n", f.run("uninstall", "-k", "--user", "0", appPkg))
	assert.Equal(t, "", f.run("list", "packages"))
	assert.Equal(t, "package:com.example.app\n", f.run("list", "packages", "-u"))

	assert.Equal(t, "Success\n", f.run("uninstall", appPkg))
	assert.Equal(t, "", f.run("list", "packages", "-u"))
	assert.Equal(t, "Failure [DELETE_FAILED_INTERNAL_ERROR]\n", f.run("uninstall", appPkg))
}

func TestUninstallUsedLibrary(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "Success\n", f.run("install", f.put(t, testutil.SdkLibrary("com.example.sdk.impl", "com.example.sdk", 1, 1))))
	require.Equal(t, "Success\n", f.run("install", f.put(t, testutil.Uses(testutil.App(appPkg, 1), "com.example.sdk", 1))))

	assert.Equal(t, "sdk:com.example.sdk:1\n", f.run("list", "sdks"))
	assert.Equal(t, "Failure [DELETE_FAILED_USED_SHARED_LIBRARY]\n", f.run("uninstall", "com.example.sdk.impl_1"))
}

func TestArchiveCommands(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "Success\n", f.run("install", f.put(t, testutil.App(appPkg, 1))))

	assert.Equal(t, "Failure [No installer found to archive app com.example.app.]\n", f.run("archive", appPkg))

	require.Equal(t, "Success\n", f.run("install", f.put(t, testutil.Installer("com.example.store"))))
	require.Equal(t, "Success\n", f.run("install", "-i", "com.example.store", f.put(t, testutil.App(appPkg, 2))))
	assert.Equal(t, "Success\n", f.run("archive", "--user", "0", appPkg))
	assert.Equal(t, "package:com.example.store\n", f.run("list", "packages"))
	assert.Equal(t, "package:com.example.app\npackage:com.example.store\n", f.run("list", "packages", "--archived"))
	assert.Contains(t, f.run("dump", appPkg), "User 0: installed=false archived=true")

	assert.Equal(t, "Success\n", f.run("request-unarchive", appPkg))
	out := f.run("request-unarchive", "com.example.store")
	assert.True(t, strings.HasPrefix(out, "Failure [Package com.example.store is not archived"), out)
}

func TestInstallAlwaysReplaces(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "Success\n", f.run("install", f.put(t, testutil.App(appPkg, 1))))

	assert.Equal(t, "Success\n", f.run("install", f.put(t, testutil.App(appPkg, 2))))
	assert.Contains(t, f.run("list", "packages", "--show-versioncode", appPkg), "versionCode:2")

	assert.Equal(t, "Success\n", f.run("install", "-r", f.put(t, testutil.App(appPkg, 3))))
	assert.Contains(t, f.run("list", "packages", "--show-versioncode", appPkg), "versionCode:3")
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	for _, pkg := range []string{"com.example.app", "com.example.camera", "org.other.app"} {
		require.Equal(t, "Success\n", f.run("install", "-i", "com.example.store", f.put(t, testutil.App(pkg, 3))))
	}

	assert.Equal(t, "package:com.example.app\npackage:org.other.app\n", f.run("list", "packages", "app"))
	assert.Equal(t, "package:com.example.app\npackage:com.example.camera\n", f.run("list", "packages", "com.example.*"))
	assert.Equal(t, "package:org.other.app versionCode:3  installer=com.example.store\n",
		f.run("list", "packages", "--show-versioncode", "-i", "org.*"))
	assert.Contains(t, f.run("list", "users"), "UserInfo{0}")
}

func TestEnableDisable(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "Success\n", f.run("install", f.put(t, testutil.App(appPkg, 1))))

	assert.Equal(t, "Package com.example.app new state: disabled\n", f.run("disable", appPkg))
	assert.Contains(t, f.run("dump", appPkg), "enabled=DISABLED")
	assert.Equal(t, "Component {com.example.app/com.example.app.MainActivity} new state: disabled\n",
		f.run("disable", appPkg+"/.MainActivity"))
	assert.Contains(t, f.run("dump", appPkg), "com.example.app.MainActivity")
	assert.Equal(t, "Package com.example.app new state: default\n", f.run("default-state", appPkg))

	out := f.run("disable", appPkg+"/.Missing")
	assert.True(t, strings.HasPrefix(out, "Failure ["), out)
}

func TestInstallExistingAndPath(t *testing.T) {
	f := newFixture(t)
	base := testutil.App(appPkg, 1)
	require.Equal(t, "Success\n", f.run("install", "--user", "0", f.put(t, base), f.put(t, testutil.Split(base, "config.hdpi"))))

	out := f.run("path", appPkg)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)
	assert.True(t, strings.HasSuffix(lines[0], "/base.apk"))
	assert.True(t, strings.HasSuffix(lines[1], "/split_config.hdpi.apk"))

	assert.Equal(t, "Package com.example.missing doesn't exist\n", f.run("install-existing", "com.example.missing"))
	assert.Equal(t, "Package com.example.app installed for user: 0\n", f.run("install-existing", appPkg))
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Unknown command: frobnicate\n", f.run("frobnicate"))
	assert.Contains(t, f.run("pm"), "install-commit")
}
