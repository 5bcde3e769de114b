package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"message-service/internal/stream"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, registry *stream.Registry, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/streams", func(c *gin.Context) {
		type streamInfo struct {
			UserID      string    `json:"user_id"`
			ConnID      string    `json:"conn_id"`
			Transport   string    `json:"transport"`
			ConnectedAt time.Time `json:"connected_at"`
		}
		snapshot := registry.Snapshot()
		streams := make([]streamInfo, 0, len(snapshot))
		for _, info := range snapshot {
			streams = append(streams, streamInfo{
				UserID:      info.UserID,
				ConnID:      info.ConnID,
				Transport:   info.Transport,
				ConnectedAt: info.ConnectedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"count": len(streams), "streams": streams})
	})
}
