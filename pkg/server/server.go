package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dibenedetto/meshade/internal/logger"
	"github.com/dibenedetto/meshade/pkg/engine"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/registry"
)

// Server is the Control Surface (C6): a gin router exposing spec §6's
// request verbs and a WebSocket streaming channel, backed by the Workflow
// Registry (C3) and the Frontier Scheduler (C5). Grounded on the teacher's
// internal/infrastructure/api/rest.Server wiring, trimmed of every
// auth/billing/storage concern this spec has no use for.
type Server struct {
	router   *gin.Engine
	registry *registry.Registry
	engine   *engine.Engine
	bus      *eventbus.Bus
	hub      *eventbus.WebSocketHub
	log      *logger.Logger

	shutdownCh chan struct{}
}

// New builds a Server wired to the given registry, engine, event bus, and
// WebSocket hub.
func New(reg *registry.Registry, eng *engine.Engine, bus *eventbus.Bus, hub *eventbus.WebSocketHub, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:     gin.New(),
		registry:   reg,
		engine:     eng,
		bus:        bus,
		hub:        hub,
		log:        log,
		shutdownCh: make(chan struct{}),
	}
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Router exposes the underlying http.Handler for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

// Done signals once the shutdown verb has been called.
func (s *Server) Done() <-chan struct{} {
	return s.shutdownCh
}

func (s *Server) registerRoutes() {
	s.router.POST("/ping", s.handlePing)
	s.router.POST("/schema", s.handleSchema)

	s.router.POST("/workflow.add", s.handleWorkflowAdd)
	s.router.POST("/workflow.remove", s.handleWorkflowRemove)
	s.router.POST("/workflow.get", s.handleWorkflowGet)
	s.router.POST("/workflow.list", s.handleWorkflowList)
	s.router.POST("/workflow.start", s.handleWorkflowStart)
	s.router.POST("/workflow.exec_list", s.handleExecList)
	s.router.POST("/workflow.exec_state", s.handleExecState)
	s.router.POST("/workflow.exec_cancel", s.handleExecCancel)
	s.router.POST("/workflow.exec_input", s.handleExecInput)
	s.router.POST("/shutdown", s.handleShutdown)

	s.router.GET("/ws", s.handleWebSocket)
}

func (s *Server) handlePing(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{"message": "pong", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleSchema(c *gin.Context) {
	c.String(http.StatusOK, schemaText)
}

func (s *Server) handleShutdown(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{"status": "shutting_down", "message": "server is shutting down"})
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
}
