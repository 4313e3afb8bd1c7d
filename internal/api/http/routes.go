package http

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the package manager API on router.
func RegisterRoutes(router gin.IRouter, h *Handlers) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", h.Prometheus)
	router.GET("/metrics/json", h.MetricsJSON)

	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("", h.ListSessions)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.AbandonSession)
		sessions.PUT("/:id/files/:name", h.WriteSessionFile)
		sessions.POST("/:id/files", h.AddSessionFile)
		sessions.DELETE("/:id/files/:name", h.RemoveSessionFile)
		sessions.POST("/:id/commit", h.CommitSession)
	}

	packages := router.Group("/packages")
	{
		packages.GET("", h.ListPackages)
		packages.GET("/:name", h.GetPackage)
		packages.DELETE("/:name", h.UninstallPackage)
		packages.POST("/:name/install-existing", h.InstallExisting)
		packages.GET("/:name/dump", h.DumpPackage)
		packages.GET("/:name/storage", h.StorageStats)
		packages.GET("/:name/enabled", h.GetEnabledSetting)
		packages.PUT("/:name/enabled", h.SetEnabledSetting)
		packages.POST("/:name/archive", h.ArchivePackage)
		packages.GET("/:name/archivable", h.IsArchivable)
		packages.POST("/:name/unarchive", h.RequestUnarchive)
	}

	router.GET("/unarchives", h.PendingUnarchives)
	router.POST("/unarchives/:id/status", h.ReportUnarchivalStatus)

	router.GET("/activities/launcher", h.LauncherActivities)
	router.POST("/activities/start", h.StartActivity)
	router.GET("/libraries", h.ListLibraries)
	router.GET("/users", h.ListUsers)

	verifications := router.Group("/verifications")
	{
		verifications.GET("", h.ListVerifications)
		verifications.GET("/:id", h.GetVerification)
		verifications.POST("/:id/respond", h.RespondVerification)
		verifications.POST("/:id/extend", h.ExtendVerification)
	}

	router.POST("/shell", h.RunShell)
}
