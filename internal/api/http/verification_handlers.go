package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/verification"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

func decision(allow bool) verification.Decision {
	if allow {
		return verification.Allow
	}
	return verification.Reject
}

func (h *Handlers) verificationEnabled(c *gin.Context) bool {
	if h.verification == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification is disabled"})
		return false
	}
	return true
}

// ListVerifications lists pending verification requests
func (h *Handlers) ListVerifications(c *gin.Context) {
	if !h.verificationEnabled(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": h.verification.Pending()})
}

// GetVerification returns one verification request
func (h *Handlers) GetVerification(c *gin.Context) {
	if !h.verificationEnabled(c) {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	info, found := h.verification.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown verification id", "kind": "VerificationNotFound"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// RespondVerification records a verifier decision
func (h *Handlers) RespondVerification(c *gin.Context) {
	if !h.verificationEnabled(c) {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req types.VerificationResponse
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	d := decision(req.Allow)
	if err := h.verification.Respond(id, req.Verifier, d); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "verifier": req.Verifier, "decision": d.String()})
}

// ExtendVerification pushes a verification deadline out
func (h *Handlers) ExtendVerification(c *gin.Context) {
	if !h.verificationEnabled(c) {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req types.ExtendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	extra := time.Duration(req.ExtraMillis) * time.Millisecond
	if err := h.verification.ExtendTimeout(id, req.Verifier, decision(req.Allow), extra); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "verifier": req.Verifier, "extra_millis": req.ExtraMillis})
}
