package registry

import (
	"context"
	"sync"
	"time"

	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/logging"
)

// Store persists scan records for restart resilience. The in-memory
// registry stays authoritative during the process lifetime; the store is
// write-through.
type Store interface {
	Save(ctx context.Context, record *ScanRecord) error
	UpdateStatus(ctx context.Context, scanID string, status Status, lastPolled time.Time) error
	Load(ctx context.Context) ([]*ScanRecord, error)
}

// Registry is the single authoritative mapping from scan identifiers to
// scan records. All access goes through the registry lock; records handed
// out are copies.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*ScanRecord
	byTask  map[string]string
	store   Store
	logger  *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore attaches a durable write-through store.
func WithStore(store Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*ScanRecord),
		byTask:  make(map[string]string),
		logger:  logging.Default().WithComponent("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put registers a new scan record. Scan identifiers are immutable once
// issued, so re-registering a known identifier is rejected.
func (r *Registry) Put(ctx context.Context, record *ScanRecord) error {
	if record.ScanID == "" {
		return errors.NewScanError(errors.CodeValidation, "Scan record requires a scan id")
	}
	if !record.Status.Valid() {
		return errors.NewScanError(errors.CodeValidation, "Scan record requires a valid status")
	}

	r.mu.Lock()
	if _, exists := r.records[record.ScanID]; exists {
		r.mu.Unlock()
		return errors.NewScanErrorWithID(errors.CodeValidation, "Scan id already registered", record.ScanID)
	}
	stored := record.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.records[stored.ScanID] = stored
	if stored.TaskID != "" {
		r.byTask[stored.TaskID] = stored.ScanID
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(ctx, stored.Clone()); err != nil {
			r.logger.ErrorRegistry("Failed to persist scan record", err, "scan_id", stored.ScanID)
		}
	}
	return nil
}

// Get returns a copy of the record for the given scan identifier.
func (r *Registry) Get(scanID string) (*ScanRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[scanID]
	if !ok {
		return nil, errors.ErrScanNotFound(scanID)
	}
	return record.Clone(), nil
}

// UpdateStatus applies a poll observation to a record. Statuses move
// forward only; a regression or a repeat of the current status just
// refreshes the poll timestamp. Unknown is transient and never stored.
func (r *Registry) UpdateStatus(ctx context.Context, scanID string, status Status) error {
	now := time.Now().UTC()

	r.mu.Lock()
	record, ok := r.records[scanID]
	if !ok {
		r.mu.Unlock()
		return errors.ErrScanNotFound(scanID)
	}

	record.LastPolled = now
	changed := false
	if status != StatusUnknown && CanTransition(record.Status, status) {
		record.Status = status
		changed = true
	}
	persisted := record.Status
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpdateStatus(ctx, scanID, persisted, now); err != nil {
			r.logger.ErrorRegistry("Failed to persist status update", err, "scan_id", scanID)
		}
	}

	if changed {
		r.logger.InfoRegistry("Scan status updated", "scan_id", scanID, "status", persisted)
	}
	return nil
}

// SetReportID records the engine report identifier once it is known.
func (r *Registry) SetReportID(ctx context.Context, scanID, reportID string) error {
	r.mu.Lock()
	record, ok := r.records[scanID]
	if !ok {
		r.mu.Unlock()
		return errors.ErrScanNotFound(scanID)
	}
	record.ReportID = reportID
	stored := record.Clone()
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(ctx, stored); err != nil {
			r.logger.ErrorRegistry("Failed to persist report id", err, "scan_id", scanID)
		}
	}
	return nil
}

// ScanIDForTask returns the scan already launched from the given task, if any.
func (r *Registry) ScanIDForTask(taskID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scanID, ok := r.byTask[taskID]
	return scanID, ok
}

// List returns copies of all records.
func (r *Registry) List() []*ScanRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ScanRecord, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, record.Clone())
	}
	return out
}

// Active returns the identifiers of scans that may still change state.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, record := range r.records {
		if !record.Status.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// Count returns the number of records held.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// LoadFromStore hydrates the registry from the durable store at startup.
// In-memory records win on conflict; the store never overwrites live state.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	records, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := 0
	for _, record := range records {
		if _, exists := r.records[record.ScanID]; exists {
			continue
		}
		r.records[record.ScanID] = record.Clone()
		if record.TaskID != "" {
			r.byTask[record.TaskID] = record.ScanID
		}
		loaded++
	}

	r.logger.InfoRegistry("Registry hydrated from store", "records", loaded)
	return nil
}
