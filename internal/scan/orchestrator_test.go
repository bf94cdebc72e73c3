package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/gmp"
	"github.com/anstrom/gvmbridge/internal/registry"
)

// fakeEngine scripts engine behavior and counts calls so tests can assert
// exactly which commands reached the engine.
type fakeEngine struct {
	existingTargets map[string]string
	taskStatus      gmp.TaskStatus
	report          *gmp.Report

	findErr   error
	createErr error
	taskErr   error
	startErr  error
	statusErr error
	reportErr error

	startReportID string

	calls struct {
		find, createTarget, createTask, start, status, report, close int
	}
}

func (f *fakeEngine) CreateTarget(_ context.Context, name string, _ []string, _ string) (string, error) {
	f.calls.createTarget++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "target-" + name, nil
}

func (f *fakeEngine) FindTargetByName(_ context.Context, name string) (string, bool, error) {
	f.calls.find++
	if f.findErr != nil {
		return "", false, f.findErr
	}
	id, ok := f.existingTargets[name]
	return id, ok, nil
}

func (f *fakeEngine) CreateTask(_ context.Context, name, _, _, _ string) (string, error) {
	f.calls.createTask++
	if f.taskErr != nil {
		return "", f.taskErr
	}
	return "task-" + name, nil
}

func (f *fakeEngine) StartTask(_ context.Context, _ string) (string, error) {
	f.calls.start++
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startReportID, nil
}

func (f *fakeEngine) GetTaskStatus(_ context.Context, _ string) (gmp.TaskStatus, error) {
	f.calls.status++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.taskStatus, nil
}

func (f *fakeEngine) GetReport(_ context.Context, _, _ string) (*gmp.Report, error) {
	f.calls.report++
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return f.report, nil
}

func (f *fakeEngine) GetConfigIDByName(_ context.Context, _ string) (string, error) {
	return "cfg-1", nil
}

func (f *fakeEngine) GetScannerIDByName(_ context.Context, _ string) (string, error) {
	return "scanner-1", nil
}

func (f *fakeEngine) Close() error {
	f.calls.close++
	return nil
}

func newTestOrchestrator(engine *fakeEngine) (*Orchestrator, *registry.Registry) {
	reg := registry.New()
	factory := func(_ context.Context) (Engine, error) {
		return engine, nil
	}
	orch := New(factory, reg, Config{
		PortListID:   "port-list-1",
		ConfigName:   "Full and fast",
		ScannerName:  "OpenVAS Default",
		ReportFilter: "levels=hml rows=100",
		Retry:        RetryPolicy{MaxRetries: 0},
	})
	return orch, reg
}

func TestTriggerScan(t *testing.T) {
	engine := &fakeEngine{startReportID: "report-1"}
	orch, reg := newTestOrchestrator(engine)

	resp, err := orch.TriggerScan(context.Background(), "dmz_scan", "192.168.1.1,192.168.1.2")
	require.NoError(t, err)
	assert.Equal(t, "report-1", resp.ScanID)
	assert.Equal(t, "dmz_scan", resp.Name)
	assert.Equal(t, []string{"192.168.1.1", "192.168.1.2"}, resp.Targets)

	record, err := reg.Get("report-1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusPending, record.Status)
	assert.Equal(t, "task-dmz_scan", record.TaskID)
	assert.Equal(t, "target-dmz_scan", record.TargetID)

	assert.Equal(t, 1, engine.calls.find)
	assert.Equal(t, 1, engine.calls.createTarget)
	assert.Equal(t, 1, engine.calls.createTask)
	assert.Equal(t, 1, engine.calls.start)
	assert.Equal(t, 1, engine.calls.close, "session must be released")
}

func TestTriggerScanInvalidInputNeverReachesEngine(t *testing.T) {
	engine := &fakeEngine{}
	orch, _ := newTestOrchestrator(engine)

	_, err := orch.TriggerScan(context.Background(), "scan", "not a target;")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = orch.TriggerScan(context.Background(), "", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	assert.Zero(t, engine.calls.find)
	assert.Zero(t, engine.calls.createTarget)
	assert.Zero(t, engine.calls.start)
}

func TestTriggerScanReusesExistingTarget(t *testing.T) {
	engine := &fakeEngine{
		existingTargets: map[string]string{"dmz_scan": "target-existing"},
		startReportID:   "report-1",
	}
	orch, reg := newTestOrchestrator(engine)

	_, err := orch.TriggerScan(context.Background(), "dmz_scan", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, 1, engine.calls.find)
	assert.Zero(t, engine.calls.createTarget, "existing target must be reused, not re-created")

	record, err := reg.Get("report-1")
	require.NoError(t, err)
	assert.Equal(t, "target-existing", record.TargetID)
}

func TestTriggerScanFallbackScanID(t *testing.T) {
	engine := &fakeEngine{startReportID: ""}
	orch, _ := newTestOrchestrator(engine)

	resp, err := orch.TriggerScan(context.Background(), "dmz_scan", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ScanID, "a scan id must be issued even when the engine omits the report id")
}

func TestStartTaskIsOneShot(t *testing.T) {
	engine := &fakeEngine{startReportID: "report-1"}
	orch, _ := newTestOrchestrator(engine)

	_, err := orch.StartTask(context.Background(), "task-9", "scan", []string{"10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 1, engine.calls.start)

	_, err = orch.StartTask(context.Background(), "task-9", "scan", []string{"10.0.0.1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyStarted))
	assert.Equal(t, 1, engine.calls.start, "engine must not see a second start command")
}

func TestTriggerScanEngineFailurePropagates(t *testing.T) {
	engine := &fakeEngine{
		findErr: errors.NewProtocolError(errors.CodeConnection, "connection reset", "get_targets"),
	}
	orch, reg := newTestOrchestrator(engine)

	_, err := orch.TriggerScan(context.Background(), "dmz_scan", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConnection))
	assert.Equal(t, 1, engine.calls.close)
	assert.Zero(t, reg.Count())
}

func TestWithRetryRetriesOnlyTransportFaults(t *testing.T) {
	orch, _ := newTestOrchestrator(&fakeEngine{})
	orch.config.Retry = RetryPolicy{MaxRetries: 2, Delay: time.Millisecond, Multiplier: 1}

	attempts := 0
	err := orch.withRetry(context.Background(), func(_ context.Context) error {
		attempts++
		return errors.NewProtocolError(errors.CodeTimeout, "deadline exceeded", "get_tasks")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = orch.withRetry(context.Background(), func(_ context.Context) error {
		attempts++
		return errors.NewScanError(errors.CodeValidation, "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-retryable errors must surface immediately")
}

func TestWithRetryHonorsContext(t *testing.T) {
	orch, _ := newTestOrchestrator(&fakeEngine{})
	orch.config.Retry = RetryPolicy{MaxRetries: 5, Delay: time.Hour, Multiplier: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := orch.withRetry(ctx, func(_ context.Context) error {
		return errors.NewProtocolError(errors.CodeConnection, "reset", "get_tasks")
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
}
