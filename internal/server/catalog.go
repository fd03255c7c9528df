package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/quizforge/internal/store"
)

type createQuizRequest struct {
	Title      string   `json:"title"`
	Objectives []string `json:"objectives"`
}

type objectiveView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type quizView struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Objectives []objectiveView `json:"objectives"`
}

func toQuizView(q *store.QuizRecord) quizView {
	v := quizView{ID: q.ID, Title: q.Title, Objectives: make([]objectiveView, 0, len(q.Objectives))}
	for _, o := range q.Objectives {
		v.Objectives = append(v.Objectives, objectiveView{ID: o.ID, Text: o.Text})
	}
	return v
}

// POST /api/quizzes
func (s *Server) createQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalid("%v", err))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		s.respondError(c, invalid("title is required"))
		return
	}
	objectives := make([]string, 0, len(req.Objectives))
	for _, o := range req.Objectives {
		if o = strings.TrimSpace(o); o != "" {
			objectives = append(objectives, o)
		}
	}
	if len(objectives) == 0 {
		s.respondError(c, invalid("at least one objective is required"))
		return
	}

	q, err := s.catalog.CreateQuiz(c.Request.Context(), title, objectives)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toQuizView(q))
}

// GET /api/quizzes/:id
func (s *Server) getQuiz(c *gin.Context) {
	id := c.Param("id")
	q, err := s.catalog.GetQuiz(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if q == nil {
		s.respondError(c, fmt.Errorf("quiz %s: %w", id, errNotFound))
		return
	}
	c.JSON(http.StatusOK, toQuizView(q))
}

type addMaterialRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// POST /api/quizzes/:id/materials
func (s *Server) addMaterial(c *gin.Context) {
	ctx := c.Request.Context()
	quizID := c.Param("id")

	var req addMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalid("%v", err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.respondError(c, invalid("content is required"))
		return
	}

	q, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if q == nil {
		s.respondError(c, fmt.Errorf("quiz %s: %w", quizID, errNotFound))
		return
	}

	m, err := s.materials.Create(ctx, quizID, strings.TrimSpace(req.Title), req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	jobID, scheduled, err := s.jobs.EnqueueMaterial(ctx, m.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"materialId": m.ID,
		"jobId":      jobID,
		"scheduled":  scheduled,
	})
}

// POST /api/materials/:id/index
func (s *Server) indexMaterial(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	m, err := s.materials.Get(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if m == nil {
		s.respondError(c, fmt.Errorf("material %s: %w", id, errNotFound))
		return
	}
	jobID, scheduled, err := s.jobs.EnqueueMaterial(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":     jobID,
		"scheduled": scheduled,
	})
}

// DELETE /api/materials/:id
func (s *Server) deleteMaterial(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	m, err := s.materials.Get(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if m == nil {
		s.respondError(c, fmt.Errorf("material %s: %w", id, errNotFound))
		return
	}
	cancelled := s.jobs.CancelByTarget(id)
	if err := s.materials.Delete(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted":   true,
		"cancelled": cancelled,
	})
}
