package registry_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
	"github.com/GriffinCanCode/pkgmgr/internal/testutil"
)

const (
	appPkg   = "com.example.app"
	storePkg = "com.example.store"
)

func newRegistry(t *testing.T, opts ...registry.Option) (*registry.Registry, *testutil.Recorder) {
	t.Helper()
	rec := &testutil.Recorder{}
	return registry.New(t.TempDir(), rec, opts...), rec
}

func request(t *testing.T, user int, installer string, ms ...apk.Manifest) registry.InstallRequest {
	t.Helper()
	req := registry.InstallRequest{
		Mode:      types.ModeFullInstall,
		Payloads:  make(map[string][]byte),
		UserID:    user,
		Installer: installer,
	}
	for _, m := range ms {
		a, data := testutil.Parsed(t, m)
		req.Apks = append(req.Apks, a)
		req.Payloads[a.File] = data
	}
	return req
}

func install(t *testing.T, r *registry.Registry, user int, installer string, ms ...apk.Manifest) *registry.Plan {
	t.Helper()
	plan, err := r.Commit(request(t, user, installer, ms...))
	require.NoError(t, err)
	return plan
}

func info(t *testing.T, r *registry.Registry, name string, user int, flags types.QueryFlags) *types.PackageInfo {
	t.Helper()
	pi, err := r.GetPackageInfo(types.SystemCaller, name, user, flags)
	require.NoError(t, err)
	return pi
}

func TestUnsafeSplitNameRejected(t *testing.T) {
	parent := t.TempDir()
	r := registry.New(filepath.Join(parent, "root"), &testutil.Recorder{})
	base := testutil.App(appPkg, 1)
	install(t, r, 0, "", base)

	// Parsed APKs never carry such a name; build the request by hand.
	req := request(t, 0, "", testutil.Split(base, "config.hdpi"))
	req.Apks[0].Split = "x/../../../../escaped"
	req.Mode = types.ModeInheritExisting
	req.PackageName = appPkg

	_, err := r.Prepare(req)
	assert.ErrorIs(t, err, pmerr.ErrInvalidApk)
	_, err = r.Commit(req)
	require.ErrorIs(t, err, pmerr.ErrInvalidApk)
	assert.Contains(t, pmerr.Failure(err), "INSTALL_FAILED_INVALID_APK")

	matches, err := filepath.Glob(filepath.Join(parent, "*.apk"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, []string{"base.apk"}, r.Files(appPkg))
	assert.Equal(t, []string{"base"}, info(t, r, appPkg, 0, 0).Splits)
}

func TestSplitLifecycle(t *testing.T) {
	r, _ := newRegistry(t)
	base := testutil.App(appPkg, 1)

	install(t, r, 0, "", base)
	assert.Equal(t, []string{"base"}, info(t, r, appPkg, 0, 0).Splits)

	req := request(t, 0, "", testutil.Split(base, "config.hdpi"))
	req.Mode = types.ModeInheritExisting
	req.PackageName = appPkg
	_, err := r.Commit(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "config.hdpi"}, info(t, r, appPkg, 0, 0).Splits)
	assert.Equal(t, []string{"base.apk", "split_config.hdpi.apk"}, r.Files(appPkg))

	// Committing the same split again does not duplicate it.
	_, err = r.Commit(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "config.hdpi"}, info(t, r, appPkg, 0, 0).Splits)

	remove := registry.InstallRequest{
		Mode:        types.ModeInheritExisting,
		PackageName: appPkg,
		Removed:     []string{"split_config.hdpi.apk"},
		UserID:      0,
	}
	_, err = r.Commit(remove)
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, info(t, r, appPkg, 0, 0).Splits)
}

func TestRemovingBaseFails(t *testing.T) {
	r, _ := newRegistry(t)
	install(t, r, 0, "", testutil.App(appPkg, 1))

	_, err := r.Commit(registry.InstallRequest{
		Mode:        types.ModeInheritExisting,
		PackageName: appPkg,
		Removed:     []string{"base.apk"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pmerr.ErrInvalidApk))
}

func TestDontKillClearedWhenBaseIncluded(t *testing.T) {
	r, _ := newRegistry(t)
	base := testutil.App(appPkg, 1)

	req := request(t, 0, "", base)
	req.Flags = types.FlagDontKillApp
	plan, err := r.Commit(req)
	require.NoError(t, err)
	assert.False(t, plan.Flags.Has(types.FlagDontKillApp))

	split := request(t, 0, "", testutil.Split(base, "config.xxhdpi"))
	split.Mode = types.ModeInheritExisting
	split.PackageName = appPkg
	split.Flags = types.FlagDontKillApp
	plan, err = r.Commit(split)
	require.NoError(t, err)
	assert.True(t, plan.Flags.Has(types.FlagDontKillApp))
	assert.False(t, plan.Killed)

	update := request(t, 0, "", testutil.App(appPkg, 2))
	update.Flags = types.FlagDontKillApp
	plan, err = r.Commit(update)
	require.NoError(t, err)
	assert.True(t, plan.Killed)
}

func TestInheritRequiresExisting(t *testing.T) {
	r, _ := newRegistry(t)
	req := request(t, 0, "", testutil.Split(testutil.App(appPkg, 1), "config.hdpi"))
	req.Mode = types.ModeInheritExisting
	req.PackageName = appPkg

	_, err := r.Prepare(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pmerr.ErrInvalidApk))
}

func TestSignatureMismatch(t *testing.T) {
	r, _ := newRegistry(t)
	install(t, r, 0, "", testutil.App(appPkg, 1))

	other := testutil.App(appPkg, 2)
	other.Certificates = []string{"someone-else"}
	_, err := r.Commit(request(t, 0, "", other))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pmerr.ErrSignatureMismatch))
	assert.True(t, strings.HasPrefix(pmerr.Failure(err), "Failure [INSTALL_FAILED_UPDATE_INCOMPATIBLE"))
	assert.Equal(t, int64(1), info(t, r, appPkg, 0, 0).VersionCode)

	rotated := testutil.App(appPkg, 2)
	rotated.Certificates = []string{testutil.Cert, "rotated-cert"}
	install(t, r, 0, "", rotated)
	assert.Equal(t, int64(2), info(t, r, appPkg, 0, 0).VersionCode)
}

func TestDowngrade(t *testing.T) {
	r, _ := newRegistry(t)
	install(t, r, 0, "", testutil.App(appPkg, 5))

	_, err := r.Commit(request(t, 0, "", testutil.App(appPkg, 4)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pmerr.ErrVersionDowngrade))

	req := request(t, 0, "", testutil.App(appPkg, 4))
	req.Flags = types.FlagAllowDowngrade
	_, err = r.Commit(req)
	require.NoError(t, err)
}

func TestUpdateBroadcastOrder(t *testing.T) {
	r, rec := newRegistry(t)
	install(t, r, 0, "", testutil.App(appPkg, 1))
	assert.Equal(t, []broadcast.Action{broadcast.ActionPackageAdded}, rec.Actions(appPkg))

	rec.Reset()
	install(t, r, 0, "", testutil.App(appPkg, 2))
	assert.Equal(t, []broadcast.Action{
		broadcast.ActionPackageRemoved,
		broadcast.ActionPackageAdded,
		broadcast.ActionPackageReplaced,
	}, rec.Actions(appPkg))
	all := rec.All()
	assert.True(t, all[0].Replacing)
	assert.True(t, all[1].Replacing)
}

func TestSharedLibraries(t *testing.T) {
	r, _ := newRegistry(t)
	consumer := testutil.Uses(testutil.App(appPkg, 1), "com.example.sdk", 1)

	_, err := r.Commit(request(t, 0, "", consumer))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(pmerr.Failure(err), "Failure [INSTALL_FAILED_MISSING_SHARED_LIBRARY"))
	assert.False(t, r.Exists(appPkg))

	install(t, r, 0, "", testutil.SdkLibrary("com.example.sdk.provider", "com.example.sdk", 1, 10))
	require.True(t, r.Exists("com.example.sdk.provider_1"))
	install(t, r, 0, "", consumer)

	lib, ok := r.SharedLibrary("com.example.sdk", 1)
	require.True(t, ok)
	assert.Equal(t, []string{appPkg}, lib.Dependents)

	err = r.Uninstall("com.example.sdk.provider_1", types.AllUsers, false)
	require.Error(t, err)
	assert.Equal(t, "Failure [DELETE_FAILED_USED_SHARED_LIBRARY]", pmerr.Failure(err))

	require.NoError(t, r.Uninstall(appPkg, types.AllUsers, false))
	require.NoError(t, r.Uninstall("com.example.sdk.provider_1", types.AllUsers, false))
	assert.Empty(t, r.SharedLibraries())
}

func TestSharedLibraryCertDigest(t *testing.T) {
	r, _ := newRegistry(t, registry.WithSdkCertDigestOverride("override"))
	install(t, r, 0, "", testutil.SdkLibrary("com.example.sdk.provider", "com.example.sdk", 1, 10))

	wrong := testutil.App(appPkg, 1)
	wrong.UsesSdkLibraries = []types.LibraryRef{{Name: "com.example.sdk", Major: 1, CertDigest: apk.CertDigest("other")}}
	_, err := r.Commit(request(t, 0, "", wrong))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "differently signed")

	wrong.UsesSdkLibraries[0].CertDigest = "override"
	install(t, r, 0, "", wrong)
}

func TestSdkMajorsShareSigner(t *testing.T) {
	r, _ := newRegistry(t)
	install(t, r, 0, "", testutil.SdkLibrary("com.example.sdk.provider", "com.example.sdk", 1, 10))

	v2 := testutil.SdkLibrary("com.example.sdk.provider", "com.example.sdk", 2, 20)
	v2.Certificates = []string{"other"}
	_, err := r.Commit(request(t, 0, "", v2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pmerr.ErrSignatureMismatch))
}

func TestPruneUnusedLibraries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newRegistry(t, registry.WithClock(func() time.Time { return now }))
	install(t, r, 0, "", testutil.SdkLibrary("com.example.sdk.provider", "com.example.sdk", 1, 10))

	assert.Empty(t, r.PruneUnusedLibraries(time.Hour))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, []string{"com.example.sdk.provider_1"}, r.PruneUnusedLibraries(time.Hour))
	assert.False(t, r.Exists("com.example.sdk.provider_1"))
}

func TestPruneLogsOncePerSweep(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newRegistry(t,
		registry.WithClock(func() time.Time { return now }),
		registry.WithLogger(zap.New(core)))
	install(t, r, 0, "", testutil.SdkLibrary("com.example.sdk.provider", "com.example.sdk", 1, 10))

	now = now.Add(2 * time.Hour)
	require.Len(t, r.PruneUnusedLibraries(time.Hour), 1)

	entries := logs.FilterMessage("pruned unused sdk libraries").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"com.example.sdk.provider_1"}, entries[0].ContextMap()["packages"])

	assert.Empty(t, r.PruneUnusedLibraries(time.Hour))
	assert.Equal(t, 1, logs.FilterMessage("pruned unused sdk libraries").Len())
}

func TestUninstallKeepData(t *testing.T) {
	r, rec := newRegistry(t)
	install(t, r, 0, "", testutil.App(appPkg, 1))
	dataDir := info(t, r, appPkg, 0, 0).DataDir

	rec.Reset()
	require.NoError(t, r.Uninstall(appPkg, 0, true))

	_, err := r.GetPackageInfo(types.SystemCaller, appPkg, 0, 0)
	assert.True(t, errors.Is(err, pmerr.ErrPackageNotFound))

	pi := info(t, r, appPkg, 0, types.MatchUninstalled)
	assert.False(t, pi.Installed)
	assert.Equal(t, dataDir, pi.DataDir)
	assert.Equal(t, []string{testutil.Cert}, pi.SigningCertificates)
	assert.DirExists(t, dataDir)
	assert.Equal(t, []broadcast.Action{broadcast.ActionPackageRemoved}, rec.Actions(appPkg))
	assert.False(t, rec.All()[0].DataRemoved)
}

func TestUninstallFull(t *testing.T) {
	r, rec := newRegistry(t)
	install(t, r, 0, "", testutil.App(appPkg, 1))
	dataDir := info(t, r, appPkg, 0, 0).DataDir

	rec.Reset()
	require.NoError(t, r.Uninstall(appPkg, 0, false))

	_, err := r.GetPackageInfo(types.SystemCaller, appPkg, 0, types.MatchUninstalled)
	assert.True(t, errors.Is(err, pmerr.ErrPackageNotFound))
	assert.NoDirExists(t, dataDir)
	assert.Equal(t, []broadcast.Action{
		broadcast.ActionPackageRemoved,
		broadcast.ActionPackageFullyRemoved,
	}, rec.Actions(appPkg))

	err = r.Uninstall(appPkg, 0, false)
	assert.Equal(t, "Failure [DELETE_FAILED_INTERNAL_ERROR]", pmerr.Failure(err))
}

func TestInstallExisting(t *testing.T) {
	r, _ := newRegistry(t, registry.WithUsers(types.UserInfo{ID: 10}))
	install(t, r, 0, "", testutil.App(appPkg, 1))
	assert.False(t, r.IsInstalled(appPkg, 10))

	require.NoError(t, r.InstallExisting(appPkg, 10))
	assert.True(t, r.IsInstalled(appPkg, 10))

	err := r.InstallExisting(appPkg, 42)
	assert.True(t, errors.Is(err, pmerr.ErrUserNotFound))
}

func TestEnabledSettingResolvesDefault(t *testing.T) {
	r, rec := newRegistry(t)
	m := testutil.App(appPkg, 1)
	m.Activities = append(m.Activities, apk.Activity{Name: ".Hidden", Enabled: apk.Bool(false)})
	install(t, r, 0, "", m)

	hidden := types.ComponentName{Package: appPkg, Class: appPkg + ".Hidden"}
	enabled, err := r.IsComponentEnabled(hidden, 0)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, r.SetComponentEnabledSetting(hidden, 0, types.EnabledStateEnabled))
	enabled, _ = r.IsComponentEnabled(hidden, 0)
	assert.True(t, enabled)

	require.NoError(t, r.SetComponentEnabledSetting(hidden, 0, types.EnabledDefault))
	enabled, _ = r.IsComponentEnabled(hidden, 0)
	assert.False(t, enabled)

	require.NoError(t, r.SetApplicationEnabledSetting(appPkg, 0, types.EnabledStateDisabled))
	setting, err := r.ApplicationEnabledSetting(appPkg, 0)
	require.NoError(t, err)
	assert.Equal(t, types.EnabledStateDisabled, setting)
	assert.False(t, info(t, r, appPkg, 0, 0).Enabled)

	require.NoError(t, r.SetApplicationEnabledSetting(appPkg, 0, types.EnabledDefault))
	assert.True(t, info(t, r, appPkg, 0, 0).Enabled)
	assert.Contains(t, rec.Actions(appPkg), broadcast.ActionPackageChanged)

	err = r.SetComponentEnabledSetting(types.ComponentName{Package: appPkg, Class: "nope"}, 0, types.EnabledStateDisabled)
	assert.True(t, errors.Is(err, pmerr.ErrActivityNotFound))
}

func TestArchivePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, r *registry.Registry)
		kind    *pmerr.Error
		message string
	}{
		{
			name:    "not installed",
			setup:   func(t *testing.T, r *registry.Registry) {},
			kind:    pmerr.ErrNotInstalled,
			message: appPkg + " is not installed.",
		},
		{
			name: "system app",
			setup: func(t *testing.T, r *registry.Registry) {
				m := testutil.App(appPkg, 1)
				m.Application.System = true
				install(t, r, 0, storePkg, m)
			},
			kind:    pmerr.ErrSystemApp,
			message: "System apps cannot be archived.",
		},
		{
			name: "no installer",
			setup: func(t *testing.T, r *registry.Registry) {
				install(t, r, 0, "", testutil.App(appPkg, 1))
			},
			kind:    pmerr.ErrNoInstaller,
			message: "No installer found to archive app " + appPkg + ".",
		},
		{
			name: "installer without unarchival",
			setup: func(t *testing.T, r *registry.Registry) {
				install(t, r, 0, "", testutil.App(storePkg, 1))
				install(t, r, 0, storePkg, testutil.App(appPkg, 1))
			},
			kind:    pmerr.ErrInstallerNoUnarchival,
			message: "Installer does not support unarchival",
		},
		{
			name: "no main activity",
			setup: func(t *testing.T, r *registry.Registry) {
				install(t, r, 0, "", testutil.Installer(storePkg))
				m := testutil.App(appPkg, 1)
				m.Activities[0].Launcher = false
				install(t, r, 0, storePkg, m)
			},
			kind:    pmerr.ErrNoMainActivity,
			message: "The app " + appPkg + " does not have a main activity.",
		},
		{
			name: "opted out",
			setup: func(t *testing.T, r *registry.Registry) {
				install(t, r, 0, "", testutil.Installer(storePkg))
				m := testutil.App(appPkg, 1)
				m.Application.Archivable = apk.Bool(false)
				install(t, r, 0, storePkg, m)
			},
			kind:    pmerr.ErrOptedOut,
			message: "The app " + appPkg + " is opted out of archiving.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRegistry(t)
			tt.setup(t, r)

			err := r.CheckArchivable(appPkg, 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind))
			assert.Contains(t, pmerr.Message(err), tt.message)

			_, err = r.Archive(appPkg, 0)
			assert.True(t, errors.Is(err, tt.kind))
		})
	}
}

func archivable(t *testing.T, opts ...registry.Option) (*registry.Registry, *testutil.Recorder) {
	t.Helper()
	r, rec := newRegistry(t, opts...)
	install(t, r, types.AllUsers, "", testutil.Installer(storePkg))
	install(t, r, types.AllUsers, storePkg, testutil.App(appPkg, 1))
	rec.Reset()
	return r, rec
}

func TestArchiveRoundTrip(t *testing.T) {
	r, rec := archivable(t)
	before := info(t, r, appPkg, 0, 0)
	require.NoError(t, os.WriteFile(filepath.Join(before.DataDir, "state"), []byte("hello"), 0o600))

	meta, err := r.Archive(appPkg, 0)
	require.NoError(t, err)
	assert.Equal(t, appPkg, meta.PackageName)
	require.Len(t, meta.Activities, 1)
	assert.Equal(t, "Main", meta.Activities[0].Title)
	assert.Equal(t, testutil.Icon, meta.Activities[0].Icon)

	all := rec.All()
	require.Len(t, all, 1)
	assert.Equal(t, broadcast.ActionPackageRemoved, all[0].Action)
	assert.True(t, all[0].Archival)
	assert.True(t, all[0].Replacing)

	_, err = r.GetPackageInfo(types.SystemCaller, appPkg, 0, 0)
	assert.True(t, errors.Is(err, pmerr.ErrPackageNotFound))
	archived := info(t, r, appPkg, 0, types.MatchArchived)
	assert.True(t, archived.Archived)
	assert.False(t, archived.Installed)
	assert.Empty(t, archived.CodePath)
	assert.Equal(t, before.DataDir, archived.DataDir)

	req := request(t, 0, storePkg, testutil.App(appPkg, 1))
	req.Flags = types.FlagUnarchive
	_, err = r.Commit(req)
	require.NoError(t, err)

	after := info(t, r, appPkg, 0, 0)
	assert.True(t, after.Installed)
	assert.False(t, after.Archived)
	assert.Equal(t, before.DataDir, after.DataDir)

	stats, err := r.StorageStats(types.SystemCaller, appPkg, 0)
	require.NoError(t, err)
	assert.Greater(t, stats.DataBytes, int64(0))
	assert.Greater(t, stats.CodeBytes, int64(0))
}

func TestArchiveIsolatedPerUser(t *testing.T) {
	r, _ := archivable(t, registry.WithUsers(types.UserInfo{ID: 10}))

	_, err := r.Archive(appPkg, 0)
	require.NoError(t, err)

	other := info(t, r, appPkg, 10, 0)
	assert.False(t, other.Archived)
	assert.True(t, other.Installed)
	assert.NotEmpty(t, other.CodePath)
	assert.Equal(t, []int{0}, r.ArchivedUsers(appPkg))
}

func TestResolveArchivedActivity(t *testing.T) {
	r, _ := archivable(t)
	_, err := r.Archive(appPkg, 0)
	require.NoError(t, err)

	main := types.ComponentName{Package: appPkg, Class: appPkg + ".MainActivity"}
	act := r.ResolveActivity(types.SystemCaller, main, 0)
	require.NotNil(t, act)
	assert.True(t, act.Archived)
	assert.Equal(t, main, act.Component)

	assert.Nil(t, r.ResolveActivity(types.SystemCaller, types.ComponentName{Package: appPkg, Class: "randomClassName"}, 0))

	launchers := r.LauncherActivities(types.SystemCaller, 0)
	var found bool
	for _, l := range launchers {
		if l.Component == main {
			found = l.Archived
		}
	}
	assert.True(t, found)
}

func TestHiddenProfileInvisible(t *testing.T) {
	r, _ := newRegistry(t, registry.WithUsers(types.UserInfo{ID: 11, Hidden: true}))
	install(t, r, 11, "", testutil.App(appPkg, 1))

	caller := types.Caller{UserID: 0}
	assert.Empty(t, r.ListPackages(caller, 11, types.MatchArchived))
	_, err := r.GetPackageInfo(caller, appPkg, 11, 0)
	assert.True(t, errors.Is(err, pmerr.ErrPackageNotFound))
	main := types.ComponentName{Package: appPkg, Class: appPkg + ".MainActivity"}
	assert.Nil(t, r.ResolveActivity(caller, main, 11))

	assert.Len(t, r.ListPackages(types.SystemCaller, 11, 0), 1)
	assert.NotNil(t, r.ResolveActivity(types.Caller{UserID: 11}, main, 11))
}

func TestDump(t *testing.T) {
	r, _ := newRegistry(t)
	base := testutil.App(appPkg, 3)
	install(t, r, 0, "", base, testutil.Split(base, "config.hdpi"))

	out, err := r.Dump(appPkg)
	require.NoError(t, err)
	assert.Contains(t, out, "    splits=[base, config.hdpi]\n")
	assert.Contains(t, out, "pkgFlags=[ HAS_CODE ALLOW_CLEAR_USER_DATA ALLOW_BACKUP ]")
	assert.Contains(t, out, "privatePkgFlags=[ ALLOW_AUDIO_PLAYBACK_CAPTURE ]")
	assert.Contains(t, out, "versionCode=3")

	_, err = r.Dump("com.missing")
	assert.True(t, errors.Is(err, pmerr.ErrPackageNotFound))
}

func TestSeeder(t *testing.T) {
	r, _ := newRegistry(t, registry.WithUsers(types.UserInfo{ID: 10}))
	dir := t.TempDir()

	sys := testutil.App("com.android.settings", 1)
	sys.Application.System = true
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Settings"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Settings", "Settings.apk"), testutil.Build(t, sys), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o644))

	res, err := registry.NewSeeder(r, dir, nil).Seed(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"com.android.settings"}, res.Installed)
	assert.True(t, r.IsInstalled("com.android.settings", 0))
	assert.True(t, r.IsInstalled("com.android.settings", 10))

	res, err = registry.NewSeeder(r, dir, nil).Seed(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"com.android.settings"}, res.Skipped)
}
