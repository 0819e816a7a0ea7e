package httpserver

import (
	"github.com/gin-gonic/gin"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
)

// TrackSessions registers each inbound request as an HTTP session in the
// registry so the reaper and the listing see both transports.
func TrackSessions(registry *session.Registry, localPort int) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.NewHTTP(c.Request.RemoteAddr, c.Request.Method, c.Request.URL.Path, localPort)
		registry.AddHTTP(s)

		defer func() {
			s.Close()
			registry.RemoveHTTP(s)
		}()

		c.Next()
	}
}
