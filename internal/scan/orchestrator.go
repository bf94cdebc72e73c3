// Package scan implements the scan orchestration core: it drives a scan
// request through remote target and task creation, launch, status polling
// and report translation against a GMP scanning engine, recording progress
// in the scan registry.
package scan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/gmp"
	"github.com/anstrom/gvmbridge/internal/logging"
	"github.com/anstrom/gvmbridge/internal/metrics"
	"github.com/anstrom/gvmbridge/internal/registry"
)

// Engine is the slice of the GMP session the orchestrator needs. A
// *gmp.Session satisfies it; tests substitute fakes.
type Engine interface {
	CreateTarget(ctx context.Context, name string, hosts []string, portListID string) (string, error)
	FindTargetByName(ctx context.Context, name string) (string, bool, error)
	CreateTask(ctx context.Context, name, configID, targetID, scannerID string) (string, error)
	StartTask(ctx context.Context, taskID string) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (gmp.TaskStatus, error)
	GetReport(ctx context.Context, reportID, filter string) (*gmp.Report, error)
	GetConfigIDByName(ctx context.Context, name string) (string, error)
	GetScannerIDByName(ctx context.Context, name string) (string, error)
	Close() error
}

// Factory acquires a fresh authenticated session. Sessions are scoped to
// one operation and never shared; the orchestrator closes every session
// it acquires on all exit paths.
type Factory func(ctx context.Context) (Engine, error)

// TargetOutcome tags the result of the check-then-create strategy.
type TargetOutcome int

const (
	TargetCreated TargetOutcome = iota
	TargetAlreadyExists
)

// RetryPolicy bounds retries of idempotent engine reads.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
}

// Config holds the engine object defaults the orchestrator binds scans to.
type Config struct {
	PortListID   string
	ConfigName   string
	ScannerName  string
	ReportFilter string
	Retry        RetryPolicy
}

// Orchestrator drives scan requests against the engine.
type Orchestrator struct {
	acquire  Factory
	registry *registry.Registry
	config   Config
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// New creates an orchestrator.
func New(factory Factory, reg *registry.Registry, cfg Config) *Orchestrator {
	return &Orchestrator{
		acquire:  factory,
		registry: reg,
		config:   cfg,
		logger:   logging.Default().WithComponent("orchestrator"),
		metrics:  metrics.GetGlobalMetrics(),
	}
}

// TriggerResponse is returned to the caller when a scan is launched.
type TriggerResponse struct {
	ScanID  string   `json:"scan_id"`
	Name    string   `json:"scan_name"`
	Targets []string `json:"targets"`
	Message string   `json:"message"`
}

// TriggerScan validates the request, creates the remote target and task,
// starts the task and records the scan. The whole operation runs on one
// session which is released on every exit path.
func (o *Orchestrator) TriggerScan(ctx context.Context, name, targetSpec string) (*TriggerResponse, error) {
	if err := ValidateScanName(name); err != nil {
		o.metrics.IncrementScansTriggered("invalid")
		return nil, err
	}
	targets, err := ParseTargets(targetSpec)
	if err != nil {
		o.metrics.IncrementScansTriggered("invalid")
		return nil, err
	}

	engine, err := o.acquire(ctx)
	if err != nil {
		o.metrics.IncrementScansTriggered("session_error")
		return nil, err
	}
	defer func() { _ = engine.Close() }()

	targetID, outcome, err := o.ensureTarget(ctx, engine, name, targets)
	if err != nil {
		o.metrics.IncrementScansTriggered("error")
		return nil, err
	}
	if outcome == TargetAlreadyExists {
		o.logger.Info("Reusing existing target", "name", name, "target_id", targetID)
	}

	configID, err := engine.GetConfigIDByName(ctx, o.config.ConfigName)
	if err != nil {
		o.metrics.IncrementScansTriggered("error")
		return nil, err
	}
	scannerID, err := engine.GetScannerIDByName(ctx, o.config.ScannerName)
	if err != nil {
		o.metrics.IncrementScansTriggered("error")
		return nil, err
	}

	taskID, err := engine.CreateTask(ctx, name, configID, targetID, scannerID)
	if err != nil {
		o.metrics.IncrementScansTriggered("error")
		return nil, err
	}

	scanID, err := o.launchTask(ctx, engine, taskID)
	if err != nil {
		o.metrics.IncrementScansTriggered("error")
		return nil, err
	}

	record := &registry.ScanRecord{
		ScanID:   scanID,
		TaskID:   taskID,
		TargetID: targetID,
		ReportID: scanID,
		Name:     name,
		Targets:  targets,
		Status:   registry.StatusPending,
	}
	if err := o.registry.Put(ctx, record); err != nil {
		return nil, err
	}

	o.metrics.IncrementScansTriggered("success")
	o.metrics.SetActiveScans(len(o.registry.Active()))
	o.logger.InfoScan("Scan started", scanID, "name", name, "task_id", taskID)

	return &TriggerResponse{
		ScanID:  scanID,
		Name:    name,
		Targets: targets,
		Message: "Scan started",
	}, nil
}

// ensureTarget implements check-then-create. Remote creation is not
// idempotent, so an existing target with the requested name is reused
// instead of blindly re-created; after a transport failure of unknown
// outcome the retried operation lands in the same check first.
func (o *Orchestrator) ensureTarget(ctx context.Context, engine Engine, name string, targets []string) (string, TargetOutcome, error) {
	targetID, found, err := engine.FindTargetByName(ctx, name)
	if err != nil {
		return "", TargetCreated, err
	}
	if found {
		return targetID, TargetAlreadyExists, nil
	}

	targetID, err = engine.CreateTarget(ctx, name, targets, o.config.PortListID)
	if err != nil {
		return "", TargetCreated, err
	}
	return targetID, TargetCreated, nil
}

// launchTask starts a task exactly once. A task the registry already knows
// a scan for is rejected; the engine never sees a second start command.
func (o *Orchestrator) launchTask(ctx context.Context, engine Engine, taskID string) (string, error) {
	if scanID, started := o.registry.ScanIDForTask(taskID); started {
		return "", errors.ErrAlreadyStarted(taskID).WithContext("scan_id", scanID)
	}

	reportID, err := engine.StartTask(ctx, taskID)
	if err != nil {
		return "", err
	}

	// The engine's report id doubles as the external scan id; engines
	// that omit it get a locally issued identifier instead.
	scanID := reportID
	if scanID == "" {
		scanID = uuid.NewString()
	}
	return scanID, nil
}

// StartTask exposes the one-shot launch transition for a task created
// outside TriggerScan. The returned scan identifier is registered under
// the given name and targets.
func (o *Orchestrator) StartTask(ctx context.Context, taskID, name string, targets []string) (string, error) {
	engine, err := o.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = engine.Close() }()

	scanID, err := o.launchTask(ctx, engine, taskID)
	if err != nil {
		return "", err
	}

	record := &registry.ScanRecord{
		ScanID:   scanID,
		TaskID:   taskID,
		ReportID: scanID,
		Name:     name,
		Targets:  targets,
		Status:   registry.StatusPending,
	}
	if err := o.registry.Put(ctx, record); err != nil {
		return "", err
	}
	return scanID, nil
}

// Registry exposes the scan registry for boundary lookups.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// withRetry retries idempotent engine reads with capped exponential
// backoff. Non-retryable errors surface immediately.
func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	policy := o.config.Retry
	delay := policy.Delay
	if delay <= 0 {
		delay = time.Second
	}
	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.WrapScanError(errors.CodeCanceled, "Retry interrupted", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * multiplier)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
