package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
	"github.com/GriffinCanCode/pkgmgr/internal/testutil"
)

const appPkg = "com.example.app"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.GRPC.Enabled = false
	cfg.RateLimit.Enabled = false
	cfg.Logging.Level = "error"
	cfg.Storage.DataRoot = filepath.Join(dir, "data")
	cfg.Storage.DBPath = filepath.Join(dir, "packages.db")
	cfg.SharedLibrary.PruneInterval = 0
	return cfg
}

func serve(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func install(t *testing.T, s *Server, version int64) {
	t.Helper()
	w := serve(t, s, http.MethodPost, "/sessions", []byte(`{}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		SessionID int `json:"session_id"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &created))

	data := testutil.Build(t, testutil.App(appPkg, version))
	w = serve(t, s, http.MethodPut, fmt.Sprintf("/sessions/%d/files/base.apk", created.SessionID), data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = serve(t, s, http.MethodPost, fmt.Sprintf("/sessions/%d/commit?wait=true", created.SessionID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServerPersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	s, err := NewServer(t.Context(), cfg)
	require.NoError(t, err)
	install(t, s, 4)
	w := serve(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	s.Close()
	s.Close()

	s, err = NewServer(t.Context(), cfg)
	require.NoError(t, err)
	defer s.Close()

	w = serve(t, s, http.MethodGet, "/packages/"+appPkg, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var info types.PackageInfo
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, int64(4), info.VersionCode)
}

func TestServerShell(t *testing.T) {
	s, err := NewServer(t.Context(), testConfig(t))
	require.NoError(t, err)
	defer s.Close()
	install(t, s, 1)

	w := serve(t, s, http.MethodPost, "/shell", []byte(`{"args":["pm","list","packages","--show-versioncode"]}`))
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.ShellResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "package:"+appPkg+" versionCode:1\n", resp.Output)
}

func TestServerRejectsBadPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Verification.PolicyFile = filepath.Join(t.TempDir(), "missing.toml")

	_, err := NewServer(t.Context(), cfg)
	assert.ErrorContains(t, err, "verifier policy")
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := NewServer(t.Context(), testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestUsersFromConfig(t *testing.T) {
	users := usersFromConfig(config.UserConfig{IDs: []int{10, 0, 10}, Hidden: []int{10}})
	assert.Equal(t, []types.UserInfo{{ID: 0}, {ID: 10, Hidden: true}}, usersFromConfig(config.UserConfig{IDs: []int{10}, Hidden: []int{10}}))
	assert.Equal(t, []types.UserInfo{{ID: 0}, {ID: 10, Hidden: true}}, users)
}
