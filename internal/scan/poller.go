package scan

import (
	"context"
	"time"

	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/gmp"
	"github.com/anstrom/gvmbridge/internal/registry"
)

// mapTaskStatus folds the engine's task status vocabulary into the
// registry's lifecycle states. Unrecognized values map to Unknown, which
// the registry treats as a transient observation.
func mapTaskStatus(status gmp.TaskStatus) registry.Status {
	switch status {
	case gmp.TaskNew, gmp.TaskRequested, gmp.TaskQueued:
		return registry.StatusPending
	case gmp.TaskRunning, gmp.TaskStopRequested:
		return registry.StatusRunning
	case gmp.TaskDone:
		return registry.StatusDone
	case gmp.TaskStopped, gmp.TaskInterrupted:
		return registry.StatusFailed
	default:
		return registry.StatusUnknown
	}
}

// PollStatus checks the engine for the scan's current state and applies
// the observation to the registry. Terminal scans are answered from the
// registry without touching the engine. A failed poll reports Unknown and
// leaves the stored status untouched.
func (o *Orchestrator) PollStatus(ctx context.Context, scanID string) (registry.Status, error) {
	record, err := o.registry.Get(scanID)
	if err != nil {
		return registry.StatusUnknown, err
	}
	if record.Status.Terminal() {
		return record.Status, nil
	}

	started := time.Now()
	var taskStatus gmp.TaskStatus
	err = o.withRetry(ctx, func(ctx context.Context) error {
		// Broken sessions cannot be reused, so every attempt gets its own.
		engine, err := o.acquire(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		taskStatus, err = engine.GetTaskStatus(ctx, record.TaskID)
		return err
	})
	o.metrics.IncrementPolls(pollOutcome(err))
	if err != nil {
		if updateErr := o.registry.UpdateStatus(ctx, scanID, registry.StatusUnknown); updateErr != nil {
			o.logger.ErrorScan("Failed to record poll failure", scanID, updateErr)
		}
		o.logger.ErrorScan("Status poll failed", scanID, err, "task_id", record.TaskID)
		return registry.StatusUnknown, err
	}

	status := mapTaskStatus(taskStatus)
	if err := o.registry.UpdateStatus(ctx, scanID, status); err != nil {
		return registry.StatusUnknown, err
	}

	o.logger.InfoScan("Status polled", scanID,
		"engine_status", string(taskStatus),
		"status", string(status),
		"duration_ms", time.Since(started).Milliseconds())
	o.metrics.SetActiveScans(len(o.registry.Active()))
	return status, nil
}

func pollOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

// GetResults returns the translated findings for a completed scan. Scans
// the registry does not consider finished yet get one status refresh; if
// the scan is still in flight the caller receives a not-ready error. A
// failed scan yields a result with empty finding lists rather than an
// error, so callers can distinguish "failed" from "still running".
func (o *Orchestrator) GetResults(ctx context.Context, scanID string) (*ScanResult, error) {
	record, err := o.registry.Get(scanID)
	if err != nil {
		return nil, err
	}

	if !record.Status.Terminal() {
		if _, err := o.PollStatus(ctx, scanID); err != nil {
			return nil, err
		}
		if record, err = o.registry.Get(scanID); err != nil {
			return nil, err
		}
	}

	switch record.Status {
	case registry.StatusFailed:
		return emptyResult(record), nil
	case registry.StatusDone:
	default:
		return nil, errors.ErrScanNotReady(scanID).WithContext("status", string(record.Status))
	}

	var report *gmp.Report
	err = o.withRetry(ctx, func(ctx context.Context) error {
		engine, err := o.acquire(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		report, err = engine.GetReport(ctx, record.ReportID, o.config.ReportFilter)
		return err
	})
	if err != nil {
		return nil, err
	}

	result, err := Translate(record, report)
	if err != nil {
		o.metrics.IncrementResultsFetched("parse_error")
		return nil, err
	}
	o.metrics.IncrementResultsFetched("success")
	return result, nil
}

// PollAll refreshes every non-terminal scan. It is the unit of work the
// background poller schedules; failures on individual scans are logged
// and do not stop the sweep.
func (o *Orchestrator) PollAll(ctx context.Context) {
	for _, scanID := range o.registry.Active() {
		if ctx.Err() != nil {
			return
		}
		if _, err := o.PollStatus(ctx, scanID); err != nil {
			o.logger.ErrorScan("Background poll failed", scanID, err)
		}
	}
}
