package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const statsPushInterval = 5 * time.Second

// StreamStats upgrades the connection and pushes an engine snapshot every few
// seconds until the client disconnects.
func (h *Handler) StreamStats(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
		return
	}
	defer conn.Close()

	// Drain reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	if err := conn.WriteJSON(h.engine.Stats()); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(h.engine.Stats()); err != nil {
				return
			}
		}
	}
}
