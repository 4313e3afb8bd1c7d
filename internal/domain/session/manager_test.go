package session_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/session"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/verification"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
	"github.com/GriffinCanCode/pkgmgr/internal/testutil"
)

const appPkg = "com.example.app"

type fixture struct {
	reg  *registry.Registry
	bus  *broadcast.Bus
	mgr  *session.Manager
	sub  *broadcast.Subscription
	ctx  context.Context
	stop context.CancelFunc
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	bus := broadcast.NewBus()
	reg := registry.New(t.TempDir(), bus)
	f := &fixture{
		reg: reg,
		bus: bus,
		sub: bus.Subscribe(broadcast.Actions(broadcast.ActionSessionCreated, broadcast.ActionSessionFinished)),
	}
	f.mgr = session.NewManager(reg, bus, opts...)
	f.ctx, f.stop = context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(func() {
		f.stop()
		f.mgr.Close()
		bus.Close()
	})
	return f
}

func (f *fixture) create(t *testing.T, params types.SessionParams) int {
	t.Helper()
	id, err := f.mgr.Create(params)
	require.NoError(t, err)
	return id
}

func (f *fixture) write(t *testing.T, id int, ms ...apk.Manifest) {
	t.Helper()
	for _, m := range ms {
		_, err := f.mgr.Write(id, testutil.FileName(m), bytes.NewReader(testutil.Build(t, m)))
		require.NoError(t, err)
	}
}

func (f *fixture) install(t *testing.T, params types.SessionParams, ms ...apk.Manifest) (int, types.Result) {
	t.Helper()
	id := f.create(t, params)
	f.write(t, id, ms...)
	res, err := f.mgr.CommitAndWait(f.ctx, id)
	require.NoError(t, err)
	return id, res
}

func TestFullInstall(t *testing.T) {
	f := newFixture(t)
	id, res := f.install(t, types.SessionParams{}, testutil.App(appPkg, 1))

	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, appPkg, res.PackageName)
	assert.Equal(t, id, res.SessionID)
	assert.True(t, f.reg.IsInstalled(appPkg, 0))

	info, err := f.mgr.Info(id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionCommitted, info.State)
	require.NotNil(t, info.Result)
	assert.True(t, info.Result.OK())

	_, err = f.mgr.Open(id)
	assert.True(t, errors.Is(err, pmerr.ErrSessionNotFound))
	_, err = f.mgr.Write(id, "base.apk", strings.NewReader("x"))
	assert.True(t, errors.Is(err, pmerr.ErrSessionNotFound))

	created, err := f.sub.Next(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, broadcast.ActionSessionCreated, created.Action)
	finished, err := f.sub.Next(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, broadcast.ActionSessionFinished, finished.Action)
	assert.True(t, finished.Success)
	assert.Equal(t, id, finished.SessionID)
}

func TestSessionIdsAreUnique(t *testing.T) {
	f := newFixture(t)
	seen := make(map[int]bool)
	for range 10 {
		id := f.create(t, types.SessionParams{})
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCreateInheritNeedsPackage(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Create(types.SessionParams{Mode: types.ModeInheritExisting, AppPackageName: appPkg})
	assert.True(t, errors.Is(err, pmerr.ErrInvalidSessionParams))

	_, err = f.mgr.Create(types.SessionParams{UserID: 42})
	assert.True(t, errors.Is(err, pmerr.ErrInvalidSessionParams))
}

func TestInheritNamesAndTombstones(t *testing.T) {
	f := newFixture(t)
	base := testutil.App(appPkg, 1)
	f.install(t, types.SessionParams{}, base, testutil.Split(base, "config.hdpi"))

	id := f.create(t, types.SessionParams{Mode: types.ModeInheritExisting, AppPackageName: appPkg})
	f.write(t, id, testutil.Split(base, "config.xhdpi"))
	require.NoError(t, f.mgr.RemoveFile(id, types.LocationDataApp, "split_config.hdpi.apk"))

	names, err := f.mgr.Names(id)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"base.apk",
		"split_config.hdpi.apk",
		"split_config.xhdpi.apk",
		"split_config.hdpi.apk.removed",
	}, names)

	res, err := f.mgr.CommitAndWait(f.ctx, id)
	require.NoError(t, err)
	require.True(t, res.OK(), res.StatusMessage)

	pi, err := f.reg.GetPackageInfo(types.SystemCaller, appPkg, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "config.xhdpi"}, pi.Splits)

	names, err = f.mgr.Names(id)
	require.NoError(t, err)
	assert.Contains(t, names, "split_config.hdpi.apk.removed")
}

func TestRemoveFileFullInstall(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, types.SessionParams{})
	f.write(t, id, testutil.App(appPkg, 1))

	require.NoError(t, f.mgr.RemoveFile(id, types.LocationDataApp, "base.apk"))
	names, err := f.mgr.Names(id)
	require.NoError(t, err)
	assert.Empty(t, names)

	err = f.mgr.RemoveFile(id, types.LocationDataApp, "base.apk")
	assert.True(t, errors.Is(err, pmerr.ErrInvalidSessionParams))
}

func TestCommitFailureReopens(t *testing.T) {
	f := newFixture(t)
	consumer := testutil.Uses(testutil.App(appPkg, 1), "com.example.sdk", 1)
	id, res := f.install(t, types.SessionParams{}, consumer)

	assert.Equal(t, types.StatusFailure, res.Status)
	assert.True(t, strings.HasPrefix(res.StatusMessage, "Failure [INSTALL_FAILED_MISSING_SHARED_LIBRARY"), res.StatusMessage)
	assert.False(t, f.reg.Exists(appPkg))

	info, err := f.mgr.Info(id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionOpen, info.State)

	_, res = f.install(t, types.SessionParams{}, testutil.SdkLibrary("com.example.sdk.impl", "com.example.sdk", 1, 1))
	require.True(t, res.OK(), res.StatusMessage)

	res, err = f.mgr.CommitAndWait(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, res.OK(), res.StatusMessage)
}

func TestCommitNotApk(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, types.SessionParams{})
	_, err := f.mgr.Write(id, "base.apk", strings.NewReader("plain text, not an archive"))
	require.NoError(t, err)

	res, err := f.mgr.CommitAndWait(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.StatusMessage, "Failure [INSTALL_PARSE_FAILED_NOT_APK"), res.StatusMessage)
}

func TestDontKillFlag(t *testing.T) {
	f := newFixture(t)
	base := testutil.App(appPkg, 1)

	id, res := f.install(t, types.SessionParams{InstallFlags: types.FlagDontKillApp}, base)
	require.True(t, res.OK())
	info, _ := f.mgr.Info(id)
	assert.False(t, info.Params.InstallFlags.Has(types.FlagDontKillApp))

	id, res = f.install(t, types.SessionParams{
		Mode:           types.ModeInheritExisting,
		AppPackageName: appPkg,
		InstallFlags:   types.FlagDontKillApp,
	}, testutil.Split(base, "config.hdpi"))
	require.True(t, res.OK())
	info, _ = f.mgr.Info(id)
	assert.True(t, info.Params.InstallFlags.Has(types.FlagDontKillApp))
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, types.SessionParams{})
	f.write(t, id, testutil.App(appPkg, 1))

	require.NoError(t, f.mgr.Abandon(id))
	require.NoError(t, f.mgr.Abandon(id))

	info, err := f.mgr.Info(id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionAbandoned, info.State)
	assert.Empty(t, info.Names)

	err = f.mgr.Commit(id, nil)
	assert.True(t, errors.Is(err, pmerr.ErrSessionNotFound))
	assert.True(t, errors.Is(f.mgr.Abandon(99), pmerr.ErrSessionNotFound))
}

func TestDataLoaderFiles(t *testing.T) {
	f := newFixture(t)
	data := testutil.Build(t, testutil.App(appPkg, 1))

	plain := f.create(t, types.SessionParams{})
	err := f.mgr.AddFile(plain, types.LocationDataApp, "base.apk", int64(len(data)), data)
	assert.True(t, errors.Is(err, pmerr.ErrInvalidSessionParams))

	id := f.create(t, types.SessionParams{DataLoader: &types.DataLoaderParams{Type: types.DataLoaderIncremental}})
	err = f.mgr.AddFile(id, types.LocationDataApp, "base.apk", 1, data)
	assert.True(t, errors.Is(err, pmerr.ErrInvalidSessionParams))
	require.NoError(t, f.mgr.AddFile(id, types.LocationDataApp, "base.apk", int64(len(data)), data))
	require.NoError(t, f.mgr.AddFile(id, types.LocationMediaObb, "main.obb", -1, []byte("obb")))

	res, err := f.mgr.CommitAndWait(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, res.OK(), res.StatusMessage)
}

func TestUnarchiveDraftAdoption(t *testing.T) {
	f := newFixture(t)
	draft := f.create(t, types.SessionParams{AppPackageName: appPkg, InstallFlags: types.FlagUnarchiveDraft})

	err := f.mgr.Commit(draft, nil)
	assert.True(t, errors.Is(err, pmerr.ErrInvalidSessionParams))

	id, err := f.mgr.Create(types.SessionParams{UnarchiveID: draft})
	require.NoError(t, err)
	assert.Equal(t, draft, id)

	info, err := f.mgr.Info(id)
	require.NoError(t, err)
	assert.Equal(t, appPkg, info.Params.AppPackageName)
	assert.True(t, info.Params.InstallFlags.Has(types.FlagUnarchive))
	assert.False(t, info.Params.InstallFlags.Has(types.FlagUnarchiveDraft))

	_, err = f.mgr.Create(types.SessionParams{UnarchiveID: 12345})
	assert.True(t, errors.Is(err, pmerr.ErrInvalidSessionParams))
}

func TestCommitWaitsForVerification(t *testing.T) {
	const verifier = "com.example.verifier"
	bus := broadcast.NewBus()
	reg := registry.New(t.TempDir(), bus)
	coord := verification.NewCoordinator(verification.Options{
		Enabled: true,
		Timeout: time.Minute,
		Policy:  &config.VerifierPolicy{Required: []string{verifier}},
	}, reg, bus)
	mgr := session.NewManager(reg, bus, session.WithVerifier(coord))
	t.Cleanup(func() {
		mgr.Close()
		bus.Close()
	})

	needs := bus.Subscribe(broadcast.Actions(broadcast.ActionPackageNeedsVerification))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	install := func(m apk.Manifest) types.ResultChan {
		id, err := mgr.Create(types.SessionParams{})
		require.NoError(t, err)
		_, err = mgr.Write(id, "base.apk", bytes.NewReader(testutil.Build(t, m)))
		require.NoError(t, err)
		ch := types.NewResultChan()
		require.NoError(t, mgr.Commit(id, ch))
		return ch
	}

	// The verifier itself installs without verification.
	res := testutil.Await(t, install(testutil.App(verifier, 1)))
	require.True(t, res.OK(), res.StatusMessage)

	ch := install(testutil.App(appPkg, 1))
	bc, err := needs.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, verifier, bc.Target)
	assert.Positive(t, bc.VerificationID)
	assert.Positive(t, bc.SessionID)
	assert.False(t, reg.Exists(appPkg))

	require.NoError(t, coord.Respond(bc.VerificationID, verifier, verification.Reject))
	res = testutil.Await(t, ch)
	assert.True(t, strings.HasPrefix(res.StatusMessage, "Failure [INSTALL_FAILED_VERIFICATION_FAILURE: Install not allowed"), res.StatusMessage)
	assert.False(t, reg.Exists(appPkg))
}
