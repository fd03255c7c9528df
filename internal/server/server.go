// Package server exposes the generation pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/orchestrator"
	"github.com/abhisek/quizforge/internal/queue"
	"github.com/abhisek/quizforge/internal/store"
)

// Batches starts and inspects generation batches.
type Batches interface {
	StartBatch(ctx context.Context, sessionID string, items []orchestrator.ItemRequest) (*orchestrator.BatchInfo, error)
	Batch(batchID string) (*orchestrator.BatchInfo, bool)
	ActiveBatches() int
}

// Jobs is the slice of the work queue the API drives directly.
type Jobs interface {
	Stats() queue.Stats
	EnqueueMaterial(ctx context.Context, materialID string) (queue.JobID, bool, error)
	CancelByTarget(targetIDs ...string) int
}

// Deps are the server's collaborators. Gatherer may be nil, in which case
// /metrics is not mounted.
type Deps struct {
	Batches   Batches
	Jobs      Jobs
	Hub       *events.Hub
	Catalog   store.CatalogRepo
	Materials store.MaterialRepo
	Gatherer  prometheus.Gatherer
	Log       *logger.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	batches   Batches
	jobs      Jobs
	hub       *events.Hub
	catalog   store.CatalogRepo
	materials store.MaterialRepo
	gatherer  prometheus.Gatherer
	log       *logger.Logger
}

// New creates a Server.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		batches:   d.Batches,
		jobs:      d.Jobs,
		hub:       d.Hub,
		catalog:   d.Catalog,
		materials: d.Materials,
		gatherer:  d.Gatherer,
		log:       log.With("component", "HTTPServer"),
	}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))

	r.GET("/healthz", s.health)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		// Batches
		api.POST("/batches", s.startBatch)
		api.GET("/batches/:id", s.getBatch)

		// Streams
		api.GET("/events/:sessionId", s.streamSSE)
		api.GET("/ws/:sessionId", s.streamWebSocket)

		api.GET("/stats", s.stats)

		// Catalog
		api.POST("/quizzes", s.createQuiz)
		api.GET("/quizzes/:id", s.getQuiz)
		api.POST("/quizzes/:id/materials", s.addMaterial)
		api.POST("/materials/:id/index", s.indexMaterial)
		api.DELETE("/materials/:id", s.deleteMaterial)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Debug("HTTP request", fields...)
		}
	}
}
