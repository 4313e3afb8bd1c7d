package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

func queryFlags(c *gin.Context) types.QueryFlags {
	var flags types.QueryFlags
	if boolQuery(c, "archived") {
		flags |= types.MatchArchived
	}
	if boolQuery(c, "uninstalled") {
		flags |= types.MatchUninstalled
	}
	return flags
}

// ListPackages lists packages visible for a user
func (h *Handlers) ListPackages(c *gin.Context) {
	user, ok := userQuery(c, 0)
	if !ok {
		return
	}
	packages := h.registry.ListPackages(caller(c), user, queryFlags(c))
	c.JSON(http.StatusOK, gin.H{"packages": packages, "count": len(packages)})
}

// GetPackage returns one package for a user
func (h *Handlers) GetPackage(c *gin.Context) {
	user, ok := userQuery(c, 0)
	if !ok {
		return
	}
	info, err := h.registry.GetPackageInfo(caller(c), c.Param("name"), user, queryFlags(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// UninstallPackage removes a package for one user or all of them
func (h *Handlers) UninstallPackage(c *gin.Context) {
	user, ok := userQuery(c, types.AllUsers)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := h.registry.Uninstall(name, user, boolQuery(c, "keep_data")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": name, "uninstalled": true})
}

// InstallExisting installs an already-present package for another user
func (h *Handlers) InstallExisting(c *gin.Context) {
	user, ok := userQuery(c, 0)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := h.registry.InstallExisting(name, user); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": name, "user_id": user})
}

// DumpPackage returns the textual package dump
func (h *Handlers) DumpPackage(c *gin.Context) {
	out, err := h.registry.Dump(c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.String(http.StatusOK, out)
}

// StorageStats reports the bytes a package uses for a user
func (h *Handlers) StorageStats(c *gin.Context) {
	user, ok := userQuery(c, 0)
	if !ok {
		return
	}
	stats, err := h.registry.StorageStats(caller(c), c.Param("name"), user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetEnabledSetting returns the app or component (class=...) setting
func (h *Handlers) GetEnabledSetting(c *gin.Context) {
	user, ok := userQuery(c, 0)
	if !ok {
		return
	}
	name := c.Param("name")

	var (
		state types.EnabledState
		err   error
	)
	if class := c.Query("class"); class != "" {
		state, err = h.registry.ComponentEnabledSetting(types.ComponentName{Package: name, Class: resolveClass(name, class)}, user)
	} else {
		state, err = h.registry.ApplicationEnabledSetting(name, user)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": name, "state": state.String()})
}

// SetEnabledSetting changes the app or component setting
func (h *Handlers) SetEnabledSetting(c *gin.Context) {
	var req types.EnabledSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state, err := types.ParseEnabledState(req.State)
	if err != nil {
		badRequest(c, err)
		return
	}
	name := c.Param("name")

	if req.Class != "" {
		comp := types.ComponentName{Package: name, Class: resolveClass(name, req.Class)}
		err = h.registry.SetComponentEnabledSetting(comp, req.UserID, state)
	} else {
		err = h.registry.SetApplicationEnabledSetting(name, req.UserID, state)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": name, "class": req.Class, "state": state.String()})
}

// resolveClass expands the ".Class" short form.
func resolveClass(pkg, class string) string {
	if len(class) > 0 && class[0] == '.' {
		return pkg + class
	}
	return class
}

// LauncherActivities lists launcher entries for a user, archived ones included
func (h *Handlers) LauncherActivities(c *gin.Context) {
	user, ok := userQuery(c, 0)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": h.registry.LauncherActivities(caller(c), user)})
}

// ListLibraries lists installed SDK libraries
func (h *Handlers) ListLibraries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"libraries": h.registry.SharedLibraries()})
}

// ListUsers lists device users
func (h *Handlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.registry.Users()})
}
