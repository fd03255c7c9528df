package server

import (
	"github.com/gin-gonic/gin"

	"github.com/abhisek/quizforge/internal/events"
)

// GET /api/events/:sessionId
func (s *Server) streamSSE(c *gin.Context) {
	sub, err := s.hub.Attach(c.Param("sessionId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	t, err := events.NewSSETransport(c.Writer)
	if err != nil {
		s.hub.Release(sub)
		s.respondError(c, err)
		return
	}
	if err := s.hub.Stream(c.Request.Context(), sub, t); err != nil {
		s.log.Debug("sse stream ended", "session", sub.ID, "error", err)
	}
}

// GET /api/ws/:sessionId
func (s *Server) streamWebSocket(c *gin.Context) {
	sub, err := s.hub.Attach(c.Param("sessionId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	conn, err := events.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.hub.Release(sub)
		s.log.Debug("websocket upgrade failed", "session", sub.ID, "error", err)
		return
	}
	if err := s.hub.StreamWebSocket(c.Request.Context(), sub, conn); err != nil {
		s.log.Debug("websocket stream ended", "session", sub.ID, "error", err)
	}
}
