package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/archive"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// ArchivePackage archives a package for a user
func (h *Handlers) ArchivePackage(c *gin.Context) {
	var req types.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name := c.Param("name")

	if err := h.archive.Archive(name, req.UserID, nil); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.Result{Status: types.StatusSuccess, PackageName: name})
}

// IsArchivable reports whether a package could be archived
func (h *Handlers) IsArchivable(c *gin.Context) {
	user, ok := userQuery(c, 0)
	if !ok {
		return
	}
	name := c.Param("name")
	archivable, err := h.archive.IsAppArchivable(name, user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": name, "archivable": archivable})
}

// RequestUnarchive asks the installer to restore a package
func (h *Handlers) RequestUnarchive(c *gin.Context) {
	var req types.UnarchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name := c.Param("name")

	id, err := h.archive.RequestUnarchive(name, req.UserID, req.AllUsers, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"package": name, "unarchive_id": id})
}

// ReportUnarchivalStatus records installer progress on an unarchive
func (h *Handlers) ReportUnarchivalStatus(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req types.UnarchivalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	status := archive.UnarchivalStatus(req.Status)
	if err := h.archive.ReportUnarchivalStatus(id, status); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unarchive_id": id, "status": status.String()})
}

// PendingUnarchives lists outstanding unarchive ids
func (h *Handlers) PendingUnarchives(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unarchive_ids": h.archive.Pending()})
}

// StartActivity launches an explicit activity
func (h *Handlers) StartActivity(c *gin.Context) {
	var req types.StartActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	comp, err := types.ParseComponentName(req.Component)
	if err != nil {
		badRequest(c, err)
		return
	}

	act, err := h.archive.StartActivity(caller(c), comp, req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, act)
}
