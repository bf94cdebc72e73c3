package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, m *Metrics) map[string]bool {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestScanMetrics(t *testing.T) {
	m := New()

	m.IncrementScansTriggered("success")
	m.IncrementScansTriggered("error")
	m.IncrementPolls("Running")
	m.IncrementResultsFetched("not_ready")
	m.SetActiveScans(3)

	names := gatherNames(t, m)
	assert.True(t, names["gvmbridge_scan_triggered_total"])
	assert.True(t, names["gvmbridge_scan_polls_total"])
	assert.True(t, names["gvmbridge_scan_results_fetched_total"])
	assert.True(t, names["gvmbridge_scan_active"])
}

func TestGMPMetrics(t *testing.T) {
	m := New()

	m.IncrementGMPCommands("create_target", "201")
	m.RecordGMPDuration("create_target", 120*time.Millisecond)
	m.IncrementGMPErrors("start_task", "REMOTE_OBJECT")
	m.IncrementSessions("success")
	m.RecordSessionDuration(2 * time.Second)

	names := gatherNames(t, m)
	assert.True(t, names["gvmbridge_gmp_commands_total"])
	assert.True(t, names["gvmbridge_gmp_command_duration_seconds"])
	assert.True(t, names["gvmbridge_gmp_errors_total"])
	assert.True(t, names["gvmbridge_gmp_sessions_total"])
	assert.True(t, names["gvmbridge_gmp_session_duration_seconds"])
}

func TestRegistryAndHTTPMetrics(t *testing.T) {
	m := New()

	m.SetRegistryRecords(7)
	m.IncrementStoreQueries("save", "success")
	m.IncrementHTTPRequests("POST", "/api/v1/scans", "201")
	m.RecordHTTPDuration("POST", "/api/v1/scans", 5*time.Millisecond)
	m.IncrementHTTPErrors("GET", "/api/v1/scans/{id}/results", "not_found")

	names := gatherNames(t, m)
	assert.True(t, names["gvmbridge_registry_records"])
	assert.True(t, names["gvmbridge_registry_store_queries_total"])
	assert.True(t, names["gvmbridge_api_requests_total"])
	assert.True(t, names["gvmbridge_api_request_duration_seconds"])
	assert.True(t, names["gvmbridge_api_errors_total"])
}

func TestSystemMetrics(t *testing.T) {
	m := New()

	before := m.GetLastUpdate()
	m.UpdateSystemMetrics()
	after := m.GetLastUpdate()

	assert.True(t, after.After(before) || before.IsZero())
	assert.Positive(t, m.GetUptime())

	names := gatherNames(t, m)
	assert.True(t, names["gvmbridge_system_memory_bytes"])
	assert.True(t, names["gvmbridge_system_goroutines"])
	assert.True(t, names["gvmbridge_system_uptime_seconds"])
}

func TestHandler(t *testing.T) {
	m := New()
	m.IncrementScansTriggered("success")
	m.UpdateSystemMetrics()

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gvmbridge_scan_triggered_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGlobalMetricsSingleton(t *testing.T) {
	assert.Same(t, GetGlobalMetrics(), GetGlobalMetrics())
}
