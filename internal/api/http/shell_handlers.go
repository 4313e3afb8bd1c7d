package http

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// RunShell executes a pm command line and returns its text output
func (h *Handlers) RunShell(c *gin.Context) {
	var req types.ShellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	out := h.shell.Run(c.Request.Context(), req.Args, bytes.NewReader(req.Stdin))
	c.JSON(http.StatusOK, types.ShellResponse{Output: out})
}
