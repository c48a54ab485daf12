package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibenedetto/meshade/pkg/engine"
	"github.com/dibenedetto/meshade/pkg/executor"
	"github.com/dibenedetto/meshade/pkg/executor/builtin"
	"github.com/dibenedetto/meshade/pkg/eventbus"
	"github.com/dibenedetto/meshade/pkg/models"
	"github.com/dibenedetto/meshade/pkg/registry"
)

func setupServerTest(t *testing.T) *Server {
	t.Helper()
	manager := executor.NewManager()
	require.NoError(t, builtin.RegisterBuiltins(manager, 64))
	bus := eventbus.New(100, nil)
	reg := registry.New(builtin.KnownKinds(), bus, nil)
	eng := engine.New(manager, bus)
	return New(reg, eng, bus, eventbus.NewWebSocketHub(nil), nil)
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, ok := env.Data.(map[string]any)
	require.True(t, ok, "response data is not an object: %s", rec.Body.String())
	return data
}

func linearWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name: name,
		Nodes: []models.Node{
			{ID: "start", Type: "start_node"},
			{ID: "end", Type: "end_node"},
		},
		Edges: []models.Edge{
			{SourceNodeIdx: 0, SourceSlot: "start", TargetNodeIdx: 1, TargetSlot: "end"},
		},
	}
}

func TestPing(t *testing.T) {
	srv := setupServerTest(t)
	rec := doRequest(t, srv, http.MethodPost, "/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "pong", data["message"])
}

func TestWorkflowAddGetListRemove(t *testing.T) {
	srv := setupServerTest(t)

	rec := doRequest(t, srv, http.MethodPost, "/workflow.add", workflowAddRequest{Workflow: linearWorkflow("greeter")})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "greeter", data["name"])
	assert.Equal(t, "added", data["status"])

	rec = doRequest(t, srv, http.MethodPost, "/workflow.list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	names, ok := data["names"].([]any)
	require.True(t, ok)
	assert.Contains(t, names, "greeter")

	rec = doRequest(t, srv, http.MethodPost, "/workflow.get", nameRequest{Name: "greeter"})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, "greeter", data["name"])

	rec = doRequest(t, srv, http.MethodPost, "/workflow.remove", nameRequest{Name: "greeter"})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, "removed", data["status"])

	rec = doRequest(t, srv, http.MethodPost, "/workflow.remove", nameRequest{Name: "greeter"})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, "not_found", data["status"])
}

func TestWorkflowAddRejectsInvalidWorkflow(t *testing.T) {
	srv := setupServerTest(t)

	bad := &models.Workflow{Name: "bad", Nodes: []models.Node{{ID: "n", Type: "not_a_kind"}}}
	rec := doRequest(t, srv, http.MethodPost, "/workflow.add", workflowAddRequest{Workflow: bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowGetUnknownReturnsNotFound(t *testing.T) {
	srv := setupServerTest(t)
	rec := doRequest(t, srv, http.MethodPost, "/workflow.get", nameRequest{Name: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowStartAndExecState(t *testing.T) {
	srv := setupServerTest(t)

	rec := doRequest(t, srv, http.MethodPost, "/workflow.add", workflowAddRequest{Workflow: linearWorkflow("pipeline")})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/workflow.start", workflowStartRequest{Name: "pipeline"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	executionID, ok := data["execution_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, executionID)

	rec = doRequest(t, srv, http.MethodPost, "/workflow.exec_list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	ids, ok := data["execution_ids"].([]any)
	require.True(t, ok)
	assert.Contains(t, ids, executionID)

	rec = doRequest(t, srv, http.MethodPost, "/workflow.exec_state", execIDRequest{ExecutionID: executionID})
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, executionID, data["execution_id"])
}

func TestExecCancelUnknownExecution(t *testing.T) {
	srv := setupServerTest(t)
	rec := doRequest(t, srv, http.MethodPost, "/workflow.exec_cancel", execIDRequest{ExecutionID: "does-not-exist"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownClosesDoneChannel(t *testing.T) {
	srv := setupServerTest(t)

	rec := doRequest(t, srv, http.MethodPost, "/shutdown", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-srv.Done():
	default:
		t.Fatal("expected Done() to be closed after /shutdown")
	}
}
