// Package handler exposes the admin HTTP surface: stats, recent sessions,
// ban management and a live stats stream. Every route except login requires a
// bearer token issued by the login endpoint.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"unknownchat/backend/internal/audit"
	"unknownchat/backend/internal/engine"
)

type Handler struct {
	engine    *engine.Engine
	journal   *audit.Journal
	log       *slog.Logger
	jwtSecret []byte
	adminKey  string
}

func New(eng *engine.Engine, journal *audit.Journal, jwtSecret, adminKey string, log *slog.Logger) *Handler {
	return &Handler{
		engine:    eng,
		journal:   journal,
		log:       log,
		jwtSecret: []byte(jwtSecret),
		adminKey:  adminKey,
	}
}

// Router wires all routes onto a gin engine.
func (h *Handler) Router() *gin.Engine {
	r := gin.Default()
	r.POST("/api/login", h.Login)

	authorized := r.Group("/", h.requireAuth)
	authorized.GET("/api/stats", h.GetStats)
	authorized.GET("/api/sessions/recent", h.RecentSessions)
	authorized.POST("/api/sessions/:id/end", h.EndSession)
	authorized.GET("/api/bans", h.ListBans)
	authorized.POST("/api/bans", h.CreateBan)
	authorized.DELETE("/api/bans/:id", h.DeleteBan)
	authorized.GET("/ws/stats", h.StreamStats)
	return r
}

// GetStats returns a point-in-time engine snapshot.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

// RecentSessions returns the latest audited sessions, newest first.
func (h *Handler) RecentSessions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	sessions, err := h.journal.RecentSessions(limit)
	if err != nil {
		h.log.Error("reading recent sessions", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// EndSession force-closes the session the given participant is in.
func (h *Handler) EndSession(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant id"})
		return
	}
	partner, ok := h.engine.AdminForceEndSession(targetID, "ended via dashboard")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant is not in a session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": targetID, "partner": partner})
}

// ListBans returns bans still in force.
func (h *Handler) ListBans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bans": h.engine.ActiveBans()})
}

type createBanRequest struct {
	ParticipantID int64  `json:"participant_id" binding:"required"`
	Hours         int    `json:"hours" binding:"required,gt=0"`
	Reason        string `json:"reason"`
}

// CreateBan bans a participant, ending their session and queue membership.
func (h *Handler) CreateBan(c *gin.Context) {
	var req createBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "banned via dashboard"
	}
	outcome, err := h.engine.AdminBan(req.ParticipantID, req.Hours, req.Reason)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ban":                outcome.Record,
		"ended_partner":      outcome.EndedPartner,
		"removed_from_queue": outcome.RemovedFromQueue,
	})
}

// DeleteBan lifts a ban.
func (h *Handler) DeleteBan(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant id"})
		return
	}
	if !h.engine.AdminUnban(targetID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active ban"})
		return
	}
	c.Status(http.StatusNoContent)
}
