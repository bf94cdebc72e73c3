package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/gvmbridge/internal/errors"
)

// StoreConfig holds PostgreSQL connection settings for the durable
// registry store.
type StoreConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultStoreConfig returns default store connection settings.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "gvmbridge",
		Username:        "gvmbridge",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// ConnectionString builds the lib/pq DSN.
func (c StoreConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_records (
	scan_id     TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	report_id   TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	targets     TEXT[] NOT NULL,
	status      TEXT NOT NULL,
	last_polled TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SQLStore is a PostgreSQL-backed registry store.
type SQLStore struct {
	db *sqlx.DB
}

// ConnectStore opens the PostgreSQL store and ensures the schema exists.
func ConnectStore(ctx context.Context, cfg StoreConfig) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.ConnectionString())
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseConnection,
			"Failed to connect to registry store", "connect", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &SQLStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing database handle, used by tests.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to create scan_records table", "migrate", err)
	}
	return nil
}

// Save inserts or replaces a scan record.
func (s *SQLStore) Save(ctx context.Context, record *ScanRecord) error {
	const query = `
		INSERT INTO scan_records
			(scan_id, task_id, target_id, report_id, name, targets, status, last_polled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (scan_id) DO UPDATE SET
			report_id = EXCLUDED.report_id,
			status = EXCLUDED.status,
			last_polled = EXCLUDED.last_polled`

	var lastPolled interface{}
	if !record.LastPolled.IsZero() {
		lastPolled = record.LastPolled
	}

	_, err := s.db.ExecContext(ctx, query,
		record.ScanID, record.TaskID, record.TargetID, record.ReportID,
		record.Name, pq.Array(record.Targets), string(record.Status),
		lastPolled, record.CreatedAt)
	if err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to save scan record", "save", err)
	}
	return nil
}

// UpdateStatus persists a status observation.
func (s *SQLStore) UpdateStatus(ctx context.Context, scanID string, status Status, lastPolled time.Time) error {
	const query = `UPDATE scan_records SET status = $1, last_polled = $2 WHERE scan_id = $3`

	result, err := s.db.ExecContext(ctx, query, string(status), lastPolled, scanID)
	if err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to update scan status", "update_status", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return errors.ErrScanNotFound(scanID)
	}
	return nil
}

// Load returns all persisted scan records.
func (s *SQLStore) Load(ctx context.Context) ([]*ScanRecord, error) {
	const query = `
		SELECT scan_id, task_id, target_id, report_id, name, targets, status, last_polled, created_at
		FROM scan_records
		ORDER BY created_at`

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to load scan records", "load", err)
	}
	defer rows.Close()

	var records []*ScanRecord
	for rows.Next() {
		var (
			record     ScanRecord
			targets    pq.StringArray
			status     string
			lastPolled sql.NullTime
		)
		if err := rows.Scan(&record.ScanID, &record.TaskID, &record.TargetID,
			&record.ReportID, &record.Name, &targets, &status,
			&lastPolled, &record.CreatedAt); err != nil {
			return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery,
				"Failed to scan record row", "load", err)
		}
		record.Targets = []string(targets)
		record.Status = Status(status)
		if lastPolled.Valid {
			record.LastPolled = lastPolled.Time
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to iterate record rows", "load", err)
	}
	return records, nil
}

// Ping checks store connectivity, used by health checks.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
