package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anstrom/gvmbridge/internal/config"
	"github.com/anstrom/gvmbridge/internal/gmp"
	"github.com/anstrom/gvmbridge/internal/registry"
	"github.com/anstrom/gvmbridge/internal/scan"
)

// noopEngine satisfies scan.Engine for routing tests that never reach
// the engine.
type noopEngine struct{}

func (noopEngine) CreateTarget(context.Context, string, []string, string) (string, error) {
	return "target-1", nil
}
func (noopEngine) FindTargetByName(context.Context, string) (string, bool, error) {
	return "", false, nil
}
func (noopEngine) CreateTask(context.Context, string, string, string, string) (string, error) {
	return "task-1", nil
}
func (noopEngine) StartTask(context.Context, string) (string, error) { return "report-1", nil }
func (noopEngine) GetTaskStatus(context.Context, string) (gmp.TaskStatus, error) {
	return gmp.TaskRunning, nil
}
func (noopEngine) GetReport(context.Context, string, string) (*gmp.Report, error) {
	return nil, nil
}
func (noopEngine) GetConfigIDByName(context.Context, string) (string, error)  { return "cfg-1", nil }
func (noopEngine) GetScannerIDByName(context.Context, string) (string, error) { return "scanner-1", nil }
func (noopEngine) Close() error                                               { return nil }

func newTestServer() *Server {
	orch := scan.New(func(context.Context) (scan.Engine, error) {
		return noopEngine{}, nil
	}, registry.New(), scan.Config{})
	return New(config.Default(), orch, nil)
}

func TestServerRoutes(t *testing.T) {
	server := newTestServer()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/v1/liveness", http.StatusOK},
		{"GET", "/api/v1/health", http.StatusOK},
		{"GET", "/api/v1/scans", http.StatusOK},
		{"GET", "/api/v1/scans/unknown", http.StatusNotFound},
		{"GET", "/metrics", http.StatusOK},
		{"DELETE", "/api/v1/scans", http.StatusMethodNotAllowed},
		{"GET", "/api/v1/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			recorder := httptest.NewRecorder()
			server.Router().ServeHTTP(recorder, req)
			assert.Equal(t, tt.want, recorder.Code)
		})
	}
}

func TestServerSetsRequestID(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest("GET", "/api/v1/liveness", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))
}

func TestServerPropagatesRequestID(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest("GET", "/api/v1/liveness", nil)
	req.Header.Set("X-Request-ID", "req_custom")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, "req_custom", recorder.Header().Get("X-Request-ID"))
}

func TestTriggerScanThroughFullStack(t *testing.T) {
	server := newTestServer()

	body := strings.NewReader(`{"scan_name":"dmz_scan","targets":"10.0.0.1"}`)
	req := httptest.NewRequest("POST", "/api/v1/scans", body)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "report-1")
}

func TestMetricsEndpointExposesPrometheus(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest("GET", "/metrics", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "gvmbridge_")
}

func TestServerAddress(t *testing.T) {
	server := newTestServer()
	assert.Equal(t, "127.0.0.1:8080", server.Address())
}
