package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/archive"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/session"
	"github.com/GriffinCanCode/pkgmgr/internal/domain/verification"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
	"github.com/GriffinCanCode/pkgmgr/internal/shell"
)

// Caller headers. Requests without them act as the system caller.
const (
	CallerUserHeader   = "X-Caller-User"
	CrossProfileHeader = "X-Caller-Cross-Profile"
	serviceName        = "pkgmgr"
	serviceVersion     = "0.1.0"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	registry     *registry.Registry
	sessions     *session.Manager
	archive      *archive.Manager
	verification *verification.Coordinator
	shell        *shell.Runner
	metrics      *monitoring.Metrics
	logger       *zap.Logger
}

// NewHandlers creates a new handler set. verification and metrics may be nil.
func NewHandlers(
	reg *registry.Registry,
	sessions *session.Manager,
	archiver *archive.Manager,
	verifier *verification.Coordinator,
	runner *shell.Runner,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		registry:     reg,
		sessions:     sessions,
		archive:      archiver,
		verification: verifier,
		shell:        runner,
		metrics:      metrics,
		logger:       logger,
	}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Health reports component state
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"packages":           len(h.registry.ListPackages(types.SystemCaller, 0, types.MatchUninstalled)),
		"sessions":           len(h.sessions.List()),
		"users":              h.registry.Users(),
		"verification":       gin.H{"enabled": h.verification != nil},
		"pending_unarchives": len(h.archive.Pending()),
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind pmerr.Kind) int {
	switch kind {
	case pmerr.SessionNotFound, pmerr.PackageNotFound, pmerr.ActivityNotFound,
		pmerr.UserNotFound, pmerr.VerificationNotFound, pmerr.NotInstalled:
		return http.StatusNotFound
	case pmerr.InvalidSessionParams, pmerr.InvalidApk, pmerr.NotApk:
		return http.StatusBadRequest
	case pmerr.SessionSealed:
		return http.StatusConflict
	case pmerr.Internal, pmerr.DeleteFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// respondError writes err with its kind, code and shell rendering.
func (h *Handlers) respondError(c *gin.Context, err error) {
	kind := pmerr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error":   pmerr.Message(err),
		"kind":    kind.String(),
		"code":    kind.Code(),
		"failure": pmerr.Failure(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// caller derives the query caller from the caller headers.
func caller(c *gin.Context) types.Caller {
	raw := c.GetHeader(CallerUserHeader)
	if raw == "" {
		return types.SystemCaller
	}
	user, err := strconv.Atoi(raw)
	if err != nil {
		return types.SystemCaller
	}
	cross, _ := strconv.ParseBool(c.GetHeader(CrossProfileHeader))
	return types.Caller{UserID: user, CrossProfile: cross}
}

// intParam reads a path parameter as an int.
func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ": " + c.Param(name)})
		return 0, false
	}
	return v, true
}

// userQuery reads the user query parameter, def when absent.
func userQuery(c *gin.Context, def int) (int, bool) {
	raw := c.Query("user")
	switch raw {
	case "":
		return def, true
	case "all":
		return types.AllUsers, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user: " + raw})
		return 0, false
	}
	return v, true
}

func boolQuery(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}
