package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/quizforge/internal/orchestrator"
)

type startBatchRequest struct {
	SessionID string                     `json:"sessionId"`
	Items     []orchestrator.ItemRequest `json:"items"`
}

// POST /api/batches
func (s *Server) startBatch(c *gin.Context) {
	var req startBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalid("%v", err))
		return
	}
	info, err := s.batches.StartBatch(c.Request.Context(), req.SessionID, req.Items)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"batchId":        info.BatchID,
		"accepted":       true,
		"totalQuestions": info.TotalQuestions,
	})
}

// GET /api/batches/:id
func (s *Server) getBatch(c *gin.Context) {
	id := c.Param("id")
	info, ok := s.batches.Batch(id)
	if !ok {
		s.respondError(c, fmt.Errorf("batch %s: %w", id, errNotFound))
		return
	}
	c.JSON(http.StatusOK, info)
}

// GET /api/stats
func (s *Server) stats(c *gin.Context) {
	st := s.jobs.Stats()
	c.JSON(http.StatusOK, gin.H{
		"queued":        st.Queued,
		"running":       st.Running,
		"completed":     st.Completed,
		"failed":        st.Failed,
		"sessions":      s.hub.Sessions(),
		"activeBatches": s.batches.ActiveBatches(),
	})
}
