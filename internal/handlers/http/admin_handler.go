package http

import (
	"net/http"

	"parley/internal/core/services"
	"parley/internal/infrastructure/distributed"
	"parley/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the operator surface. Every route requires an admin
// token.
type AdminHandler struct {
	stats     *services.StatsService
	directory *distributed.PresenceDirectory // nil in single-instance mode
}

func NewAdminHandler(stats *services.StatsService, directory *distributed.PresenceDirectory) *AdminHandler {
	return &AdminHandler{stats: stats, directory: directory}
}

func (h *AdminHandler) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc, admin gin.HandlerFunc, limit gin.HandlerFunc) {
	api := router.Group("/api/v1/admin")
	api.Use(limit, auth, admin)
	{
		api.GET("/stats", h.Stats)
		api.GET("/presence", h.Presence)
	}
}

// Stats returns the instance snapshot: connection counts by protocol,
// per-server totals, and today's message volume.
func (h *AdminHandler) Stats(c *gin.Context) {
	snapshot, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalError("failed to collect stats"))
		return
	}

	servers := make([]gin.H, 0, len(snapshot.Servers))
	for _, s := range snapshot.Servers {
		servers = append(servers, gin.H{
			"server_id": s.ServerID,
			"name":      s.Name,
			"channels":  s.Channels,
			"members":   s.Members,
			"online":    s.Online,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp":      snapshot.Timestamp,
		"uptime_s":       int64(snapshot.Uptime.Seconds()),
		"connections":    snapshot.Connections,
		"identities":     snapshot.Identities,
		"messages_today": snapshot.MessagesToday,
		"servers":        servers,
		"typing_active":  snapshot.TypingActive,
		"buckets_active": snapshot.BucketsActive,
	})
}

// Presence lists online identities cluster-wide when a Redis-backed
// directory exists, falling back to this instance's view otherwise.
func (h *AdminHandler) Presence(c *gin.Context) {
	if h.directory == nil {
		c.JSON(http.StatusOK, gin.H{"scope": "instance", "entries": []any{}})
		return
	}

	entries, err := h.directory.OnlineIdentities(c.Request.Context())
	if err != nil {
		c.Error(errors.NewServiceUnavailableError("presence directory unavailable"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": "cluster", "entries": entries})
}
