package httpserver

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/protocol"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/report"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/updates"
)

// Generator is the slice of the report service the HTTP surface needs.
type Generator interface {
	Generate(ctx context.Context, documentID, clientID, requester string) (*report.Result, *protocol.Error)
}

type Handler struct {
	reports  Generator
	registry *session.Registry
	catalog  *updates.Catalog
}

func NewHandler(
	reports Generator,
	registry *session.Registry,
	catalog *updates.Catalog,
) *Handler {
	return &Handler{
		reports:  reports,
		registry: registry,
		catalog:  catalog,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/report", h.report)
	r.GET("/clients", h.clients)
	r.GET("/updates", h.updates)
	r.GET("/updates/:file", h.download)

	for _, route := range r.Routes() {
		log.Printf("[ROUTE] %s %s", route.Method, route.Path)
	}
}

// errorBody renders the shared {success:false, error:{code,message}}
// shape consumed by the administrative front end.
func errorBody(perr *protocol.Error) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    perr.Code,
			"message": perr.Message,
		},
	}
}

func (h *Handler) report(c *gin.Context) {
	documentID := c.Query("document")
	clientID := c.Query("clientId")

	requester := c.GetHeader("X-Requester-Id")
	if requester == "" {
		requester = "http"
	}

	res, perr := h.reports.Generate(c.Request.Context(), documentID, clientID, requester)
	if perr != nil {
		status := http.StatusOK
		if perr.Code == protocol.CodeMissingClientID || perr.Code == protocol.CodeUnknownDocument {
			// caller error, not a client-side outcome
			status = http.StatusBadRequest
		}
		c.JSON(status, errorBody(perr))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"reportId": res.ReportID,
		"data":     res.Data,
	})
}

func (h *Handler) clients(c *gin.Context) {
	list := make([]session.Snapshot, 0)
	h.registry.EachTCP(func(s *session.TCP) {
		list = append(list, s.Snapshot())
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"clients": list,
	})
}

func (h *Handler) updates(c *gin.Context) {
	files, err := h.catalog.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(
			protocol.NewError(protocol.CodeSendFailed, "failed to list updates")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"files":   files,
	})
}

func (h *Handler) download(c *gin.Context) {
	path, err := h.catalog.Path(c.Param("file"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorBody(
			protocol.NewError(protocol.CodeUnknownDocument, "unknown update file")))
		return
	}

	c.FileAttachment(path, c.Param("file"))
}
