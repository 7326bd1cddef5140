// Package server exposes the workflow service over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chanops/contentflow/article"
	"github.com/chanops/contentflow/channel"
	"github.com/chanops/contentflow/content"
	"github.com/chanops/contentflow/graph/store"
	"github.com/chanops/contentflow/llm"
	"github.com/chanops/contentflow/service"
)

// Deps carries the collaborators the HTTP layer fronts.
type Deps struct {
	Workflows *service.WorkflowService
	Endpoints *llm.Registry
	Channels  *channel.Registry
	Articles  article.Store
	Metrics   *prometheus.Registry
	Logger    *slog.Logger
}

// Server wires the REST routes onto a gin engine.
type Server struct {
	deps   Deps
	router *gin.Engine
	log    *slog.Logger
}

// New builds the router. Callers run it via Handler or http.Server.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{deps: deps, router: router, log: log}
	s.routes()
	return s
}

// Handler returns the HTTP handler for serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{})))
	}

	wf := s.router.Group("/workflows")
	wf.POST("/content-creation", s.startWorkflow(content.TypeContentCreation))
	wf.POST("/multi-model", s.startWorkflow(content.TypeMultiModel))
	wf.POST("/optimization", s.startWorkflow(content.TypeOptimization))
	wf.GET("", s.listWorkflows)
	wf.GET("/:id", s.getWorkflow)
	wf.GET("/:id/history", s.getWorkflowHistory)
	wf.POST("/:id/pause", s.pauseWorkflow)
	wf.POST("/:id/cancel", s.cancelWorkflow)
	wf.POST("/:id/continue", s.continueWorkflow)

	ep := s.router.Group("/endpoints")
	ep.POST("", s.registerEndpoint)
	ep.GET("", s.listEndpoints)
	ep.DELETE("/:id", s.removeEndpoint)

	ch := s.router.Group("/channels")
	ch.POST("", s.registerChannel)
	ch.GET("", s.listChannels)
	ch.DELETE("/:id", s.removeChannel)

	if s.deps.Articles != nil {
		ar := s.router.Group("/articles")
		ar.GET("", s.listArticles)
		ar.GET("/stats", s.articleStats)
		ar.GET("/:id", s.getArticle)
	}
}

func (s *Server) startWorkflow(workflowType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var initial content.State
		if err := c.ShouldBindJSON(&initial); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid initial state: " + err.Error()})
			return
		}

		record, err := s.deps.Workflows.StartWorkflow(c.Request.Context(), workflowType, initial)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, record)
	}
}

func (s *Server) listWorkflows(c *gin.Context) {
	filter := store.Filter{
		WorkflowType: c.Query("type"),
		Status:       c.Query("status"),
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	summaries, err := s.deps.Workflows.ListWorkflows(c.Request.Context(), filter, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": summaries})
}

func (s *Server) getWorkflow(c *gin.Context) {
	info, err := s.deps.Workflows.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) getWorkflowHistory(c *gin.Context) {
	info, err := s.deps.Workflows.GetWorkflowHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) pauseWorkflow(c *gin.Context) {
	if err := s.deps.Workflows.PauseWorkflow(c.Request.Context(), c.Param("id")); err != nil {
		s.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "status": store.StatusPaused})
}

func (s *Server) cancelWorkflow(c *gin.Context) {
	if err := s.deps.Workflows.CancelWorkflow(c.Request.Context(), c.Param("id")); err != nil {
		s.workflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "status": store.StatusCancelled})
}

func (s *Server) continueWorkflow(c *gin.Context) {
	record, err := s.deps.Workflows.ContinueWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.workflowError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, record)
}

func (s *Server) workflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotPaused),
		errors.Is(err, service.ErrNotRunning),
		errors.Is(err, service.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) registerEndpoint(c *gin.Context) {
	var ep llm.Endpoint
	if err := c.ShouldBindJSON(&ep); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint: " + err.Error()})
		return
	}
	if err := s.deps.Endpoints.Register(ep); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": ep.ID})
}

func (s *Server) listEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": s.deps.Endpoints.List()})
}

func (s *Server) removeEndpoint(c *gin.Context) {
	s.deps.Endpoints.Remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) registerChannel(c *gin.Context) {
	var ch channel.Channel
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel: " + err.Error()})
		return
	}
	if err := s.deps.Channels.Register(ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": ch.ID})
}

func (s *Server) listChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.deps.Channels.List()})
}

func (s *Server) removeChannel(c *gin.Context) {
	s.deps.Channels.Remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) listArticles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	articles, err := s.deps.Articles.ListArticles(c.Request.Context(), c.Query("channel_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (s *Server) getArticle(c *gin.Context) {
	a, err := s.deps.Articles.GetArticle(c.Request.Context(), c.Param("id"))
	if errors.Is(err, article.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) articleStats(c *gin.Context) {
	stats, err := s.deps.Articles.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
