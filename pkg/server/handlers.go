package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dibenedetto/meshade/pkg/models"
)

type workflowAddRequest struct {
	Workflow *models.Workflow `json:"workflow" binding:"required"`
	Name     string           `json:"name"`
}

func (s *Server) handleWorkflowAdd(c *gin.Context) {
	var req workflowAddRequest
	if !bindJSON(c, &req) {
		return
	}
	name, err := s.registry.Add(req.Workflow, req.Name)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"name": name, "status": "added"})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleWorkflowRemove(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	removed := s.registry.Remove(req.Name)
	status := "not_found"
	if removed {
		status = "removed"
	}
	respondJSON(c, http.StatusOK, gin.H{"name": req.Name, "status": status})
}

func (s *Server) handleWorkflowGet(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.Name == "" {
		names := s.registry.List()
		workflows := make(map[string]*models.Workflow, len(names))
		for _, name := range names {
			if wf, err := s.registry.Get(name); err == nil {
				workflows[name] = wf
			}
		}
		respondJSON(c, http.StatusOK, gin.H{"name": nil, "workflows": workflows})
		return
	}

	wf, err := s.registry.Get(req.Name)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"name": req.Name, "workflow": wf})
}

func (s *Server) handleWorkflowList(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{"names": s.registry.List()})
}

type workflowStartRequest struct {
	Name        string         `json:"name" binding:"required"`
	InitialData map[string]any `json:"initial_data"`
}

func (s *Server) handleWorkflowStart(c *gin.Context) {
	var req workflowStartRequest
	if !bindJSON(c, &req) {
		return
	}

	impl, err := s.registry.Impl(req.Name)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	executionID, err := s.engine.Start(impl.Workflow, req.InitialData, impl.Handles)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"execution_id": executionID, "status": "started"})
}

func (s *Server) handleExecList(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{"execution_ids": s.engine.List()})
}

type execIDRequest struct {
	ExecutionID string `json:"execution_id"`
}

func (s *Server) handleExecState(c *gin.Context) {
	var req execIDRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.ExecutionID == "" {
		respondJSON(c, http.StatusOK, gin.H{"execution_id": nil, "state": s.engine.States()})
		return
	}

	state, err := s.engine.Status(req.ExecutionID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"execution_id": req.ExecutionID, "state": state})
}

func (s *Server) handleExecCancel(c *gin.Context) {
	var req execIDRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ExecutionID == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	state, err := s.engine.Cancel(req.ExecutionID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"execution_id": req.ExecutionID, "status": state.Phase, "state": state})
}

type execInputRequest struct {
	ExecutionID string `json:"execution_id" binding:"required"`
	NodeID      string `json:"node_id" binding:"required"`
	InputData   any    `json:"input_data"`
}

func (s *Server) handleExecInput(c *gin.Context) {
	var req execInputRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := s.engine.ProvideUserInput(req.ExecutionID, req.NodeID, req.InputData); err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
