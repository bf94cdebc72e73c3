// Package registry maintains the authoritative in-process mapping from
// externally visible scan identifiers to their scan records. It is the only
// shared mutable structure in the orchestration core and may optionally be
// backed by a PostgreSQL store for restart resilience.
package registry

import (
	"time"
)

// Status represents the lifecycle state of a scan.
type Status string

const (
	StatusPending Status = "Pending"
	StatusRunning Status = "Running"
	StatusDone    Status = "Done"
	StatusFailed  Status = "Failed"

	// StatusUnknown is a transient, observed-but-not-authoritative state
	// reported when a poll fails. It is never stored as a record status.
	StatusUnknown Status = "Unknown"
)

// statusRank orders the authoritative statuses for forward-only transitions.
var statusRank = map[Status]int{
	StatusPending: 0,
	StatusRunning: 1,
	StatusDone:    2,
	StatusFailed:  2,
}

// Terminal reports whether a scan in this status can still change.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether s is a status this registry stores.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether a record may move from one status to
// another. Statuses only move forward through Pending, Running and the
// terminal pair; regressions and transitions out of a terminal state are
// rejected.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	return statusRank[to] > statusRank[from]
}

// ScanRecord is the local view of one scan request.
type ScanRecord struct {
	// ScanID is the stable, caller-facing handle for this scan.
	ScanID string `db:"scan_id" json:"scan_id"`

	// TaskID is the engine task this scan was started from.
	TaskID string `db:"task_id" json:"task_id"`

	// TargetID is the engine target the task is bound to.
	TargetID string `db:"target_id" json:"target_id"`

	// ReportID is the engine report identifier, populated once known.
	ReportID string `db:"report_id" json:"report_id"`

	// Name is the human-readable scan name.
	Name string `db:"name" json:"name"`

	// Targets is the list of addresses submitted for scanning.
	Targets []string `db:"-" json:"targets"`

	// Status is the last authoritative status.
	Status Status `db:"status" json:"status"`

	// LastPolled is the time of the most recent status check.
	LastPolled time.Time `db:"last_polled" json:"last_polled"`

	// CreatedAt is when the scan was launched.
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Clone returns a deep copy so callers never share the registry's record.
func (r *ScanRecord) Clone() *ScanRecord {
	cp := *r
	cp.Targets = append([]string(nil), r.Targets...)
	return &cp
}
