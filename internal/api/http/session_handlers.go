package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// CreateSession opens an install session
func (h *Handlers) CreateSession(c *gin.Context) {
	var req types.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id, err := h.sessions.Create(req.Params())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

// ListSessions lists sessions that have not been reaped
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.List()})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	info, err := h.sessions.Info(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// WriteSessionFile stages the request body as a session file
func (h *Handlers) WriteSessionFile(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	name := c.Param("name")

	n, err := h.sessions.Write(id, name, c.Request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "name": name, "bytes": n})
}

// AddSessionFile registers a data-loader file
func (h *Handlers) AddSessionFile(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req types.AddFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.sessions.AddFile(id, req.Location, req.Name, req.Size, req.Metadata); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "name": req.Name})
}

// RemoveSessionFile removes a staged file or tombstones an inherited split
func (h *Handlers) RemoveSessionFile(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	location, err := strconv.Atoi(c.DefaultQuery("location", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.sessions.RemoveFile(id, types.FileLocation(location), c.Param("name")); err != nil {
		h.respondError(c, err)
		return
	}

	names, err := h.sessions.Names(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "names": names})
}

// CommitSession commits a session. With wait=true the response carries the
// install result; otherwise the commit runs in the background and the
// result shows up on the session.
func (h *Handlers) CommitSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	if !boolQuery(c, "wait") {
		if err := h.sessions.Commit(id, nil); err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"session_id": id})
		return
	}

	res, err := h.sessions.CommitAndWait(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if !res.OK() {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}

// AbandonSession discards a session
func (h *Handlers) AbandonSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.Abandon(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "abandoned": true})
}
