// Package testutil provides APK fixtures, broadcast recorders and a wired
// package manager harness for tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Cert is the default signing certificate of fixtures.
const Cert = "test-cert-a"

// IconPath is the launcher icon entry of fixtures.
const IconPath = "res/icon.png"

// Icon is the launcher icon payload of fixtures.
var Icon = []byte{0x89, 'P', 'N', 'G'}

// App returns a signed app manifest with one launcher activity named
// <pkg>.MainActivity.
func App(pkg string, version int64) apk.Manifest {
	return apk.Manifest{
		Package:      pkg,
		VersionCode:  version,
		Certificates: []string{Cert},
		Application:  apk.Application{Label: "Test App"},
		Activities: []apk.Activity{
			{Name: ".MainActivity", Label: "Main", Icon: IconPath, Launcher: true, Exported: true},
		},
	}
}

// Installer returns an installer app manifest with an unarchive receiver.
func Installer(pkg string) apk.Manifest {
	m := App(pkg, 1)
	m.Receivers = []apk.Receiver{{Name: ".UnarchiveReceiver", Unarchive: true}}
	return m
}

// Split derives a config split of m.
func Split(m apk.Manifest, name string) apk.Manifest {
	s := apk.Manifest{
		Package:      m.Package,
		VersionCode:  m.VersionCode,
		Split:        name,
		Certificates: append([]string(nil), m.Certificates...),
	}
	return s
}

// SdkLibrary returns an SDK library manifest. It installs as <pkg>_<major>.
func SdkLibrary(pkg, name string, major, version int64) apk.Manifest {
	return apk.Manifest{
		Package:      pkg,
		VersionCode:  version,
		Certificates: []string{Cert},
		SdkLibrary:   &types.LibraryRef{Name: name, Major: major},
	}
}

// Uses makes m depend on an SDK library signed by Cert.
func Uses(m apk.Manifest, name string, major int64) apk.Manifest {
	m.UsesSdkLibraries = append(m.UsesSdkLibraries, types.LibraryRef{
		Name:       name,
		Major:      major,
		CertDigest: apk.CertDigest(Cert),
	})
	return m
}

// FileName is the conventional session file name of a manifest's split.
func FileName(m apk.Manifest) string {
	if m.Split == "" {
		return "base.apk"
	}
	return "split_" + m.Split + ".apk"
}

// Build encodes m as an APK with the fixture icon.
func Build(t testing.TB, m apk.Manifest) []byte {
	t.Helper()
	data, err := apk.Build(m, map[string][]byte{IconPath: Icon})
	require.NoError(t, err)
	return data
}

// Parsed builds and parses m.
func Parsed(t testing.TB, m apk.Manifest) (*apk.Apk, []byte) {
	t.Helper()
	data := Build(t, m)
	a, err := apk.Parse(FileName(m), data)
	require.NoError(t, err)
	return a, data
}

// Recorder is a broadcast.Publisher that keeps everything published.
type Recorder struct {
	mu  sync.Mutex
	bcs []broadcast.Broadcast
}

// Publish implements broadcast.Publisher.
func (r *Recorder) Publish(bcs ...broadcast.Broadcast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bcs = append(r.bcs, bcs...)
}

// All returns a copy of every recorded broadcast.
func (r *Recorder) All() []broadcast.Broadcast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]broadcast.Broadcast(nil), r.bcs...)
}

// Actions returns recorded actions for pkg in publish order.
func (r *Recorder) Actions(pkg string) []broadcast.Action {
	var out []broadcast.Action
	for _, b := range r.All() {
		if b.PackageName == pkg {
			out = append(out, b.Action)
		}
	}
	return out
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bcs = nil
}

// MockStatusReceiver is a testify mock of types.StatusReceiver.
type MockStatusReceiver struct {
	mock.Mock
}

// Deliver mocks the Deliver method.
func (m *MockStatusReceiver) Deliver(r types.Result) {
	m.Called(r)
}

// Await waits for the first result on ch or fails the test.
func Await(t testing.TB, ch types.ResultChan) types.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for result")
		return types.Result{}
	}
}
