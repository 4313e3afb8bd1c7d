package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordInstall("success")
		m.RecordSessionEvent("created")
		m.SetSessionsActive(2)
		m.RecordBroadcast("x")
		m.RecordVerification("allowed", time.Second)
		m.Close()
	})
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	defer a.Close()
	b := NewMetrics()
	defer b.Close()

	a.RecordInstall("success")
	a.RecordInstall("INSTALL_FAILED_INVALID_APK")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Installs.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Installs.WithLabelValues("success")))

	snap := a.Snapshot()
	assert.Equal(t, int64(1), snap.Installs)
	assert.Equal(t, int64(1), snap.FailedInstalls)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	defer m.Close()
	m.RecordBroadcast("android.intent.action.PACKAGE_ADDED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pm_broadcasts_total"))
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	defer m.Close()

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/ping", "418")))
	assert.Equal(t, int64(1), m.Snapshot().TotalErrors)
}
