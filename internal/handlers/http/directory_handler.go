package http

import (
	"net/http"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
	"tradecast/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// DirectoryHandler exposes the read-only view of live streams and online
// identities. All mutations go through the websocket protocol; this
// surface exists for lobby pages and ops tooling.
type DirectoryHandler struct {
	directory ports.StreamDirectory
}

func NewDirectoryHandler(directory ports.StreamDirectory) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

func (h *DirectoryHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/:id", h.GetStream)
		api.GET("/identities/:id/online", h.IsIdentityOnline)
	}
}

func (h *DirectoryHandler) ListStreams(c *gin.Context) {
	streams := h.directory.ListActiveStreams(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

func (h *DirectoryHandler) GetStream(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))

	summary, ok := h.directory.GetStreamByID(c.Request.Context(), streamID)
	if !ok {
		writeError(c, apperrors.NewNotFound("stream"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stream": summary,
	})
}

// writeError renders an AppError with its own HTTP status; anything else
// is a plain 500.
func writeError(c *gin.Context, err error) {
	if appErr := apperrors.From(err); appErr != nil {
		c.JSON(appErr.HTTPStatus, gin.H{"code": appErr.Code, "error": appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": apperrors.CodeInternal, "error": err.Error()})
}

func (h *DirectoryHandler) IsIdentityOnline(c *gin.Context) {
	identity := domain.Identity(c.Param("id"))

	c.JSON(http.StatusOK, gin.H{
		"identity": identity,
		"online":   h.directory.IsIdentityOnline(c.Request.Context(), identity),
	})
}
