package app

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/config"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/httpserver"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/report"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/updates"
)

func setupHTTP(
	cfg config.Config,
	registry *session.Registry,
	reports *report.Service,
	catalog *updates.Catalog,
) *gin.Engine {

	handler := httpserver.NewHandler(reports, registry, catalog)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	localPort, _ := strconv.Atoi(cfg.HTTPPort)
	router.Use(httpserver.TrackSessions(registry, localPort))

	handler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}
