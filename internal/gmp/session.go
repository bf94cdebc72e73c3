package gmp

import (
	"context"
	"encoding/xml"
	stderrors "errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/logging"
	"github.com/anstrom/gvmbridge/internal/metrics"
)

// Config holds session credentials and timeouts.
type Config struct {
	Username string
	Password string

	// ConnectTimeout bounds connect plus login.
	ConnectTimeout time.Duration

	// CommandTimeout bounds each command round-trip when the caller's
	// context carries no earlier deadline.
	CommandTimeout time.Duration
}

// DefaultConfig returns conservative session defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 15 * time.Second,
		CommandTimeout: 60 * time.Second,
	}
}

// Dialer produces authenticated sessions. Sessions are not shared across
// concurrent operations; each orchestration operation dials its own.
type Dialer struct {
	transport Transport
	config    Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewDialer creates a session dialer for the given transport.
func NewDialer(transport Transport, cfg Config) *Dialer {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultConfig().CommandTimeout
	}
	return &Dialer{
		transport: transport,
		config:    cfg,
		logger:    logging.Default().WithComponent("gmp"),
		metrics:   metrics.GetGlobalMetrics(),
	}
}

// Dial connects to the engine and performs the login handshake. The
// returned session is in the Authenticated state; the caller owns it and
// must Close it on every exit path.
func (d *Dialer) Dial(ctx context.Context) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.config.ConnectTimeout)
	defer cancel()

	conn, err := d.transport.Dial(dialCtx)
	if err != nil {
		d.metrics.IncrementSessions("connect_error")
		return nil, errors.ErrEngineUnreachable(err)
	}

	session := &Session{
		conn:     conn,
		decoder:  xml.NewDecoder(conn),
		config:   d.config,
		logger:   d.logger,
		metrics:  d.metrics,
		openedAt: time.Now(),
	}

	if err := session.authenticate(dialCtx); err != nil {
		_ = session.Close()
		d.metrics.IncrementSessions("auth_error")
		return nil, err
	}

	d.metrics.IncrementSessions("success")
	d.logger.InfoSession("Session established", "endpoint", d.transport.Address())
	return session, nil
}

// Session is one authenticated, stateful connection to the scanning
// engine. It is not safe for concurrent use; protocol exchanges must not
// interleave on one connection.
type Session struct {
	conn     net.Conn
	decoder  *xml.Decoder
	config   Config
	logger   *logging.Logger
	metrics  *metrics.Metrics
	openedAt time.Time

	broken    bool
	closeOnce sync.Once
	closeErr  error
}

// authenticate performs the GMP login handshake.
func (s *Session) authenticate(ctx context.Context) error {
	cmd := authenticateCommand{
		Credentials: credentials{
			Username: s.config.Username,
			Password: s.config.Password,
		},
	}

	var resp authenticateResponse
	if err := s.roundTrip(ctx, "authenticate", &cmd, &resp); err != nil {
		return errors.ErrAuthFailed(err)
	}
	if !resp.ok() {
		code, text := resp.statusInfo()
		return errors.NewProtocolError(errors.CodeAuth,
			"Engine rejected credentials: "+text, "authenticate").WithStatus(code)
	}
	return nil
}

// CreateTarget creates a named target for the given hosts and returns the
// engine-assigned target identifier.
func (s *Session) CreateTarget(ctx context.Context, name string, hosts []string, portListID string) (string, error) {
	cmd := createTargetCommand{
		Name:     name,
		Hosts:    strings.Join(hosts, ","),
		PortList: idRef{ID: portListID},
	}

	var resp createTargetResponse
	if err := s.roundTrip(ctx, "create_target", &cmd, &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", s.remoteError("create_target", &resp)
	}
	return resp.ID, nil
}

// FindTargetByName looks an existing target up by its exact name. Used by
// the check-then-create strategy; remote creation is not idempotent.
func (s *Session) FindTargetByName(ctx context.Context, name string) (string, bool, error) {
	var resp getTargetsResponse
	if err := s.roundTrip(ctx, "get_targets", &getTargetsCommand{}, &resp); err != nil {
		return "", false, err
	}
	if !resp.ok() {
		return "", false, s.remoteError("get_targets", &resp)
	}

	for _, target := range resp.Targets {
		if target.Name == name {
			return target.ID, true, nil
		}
	}
	return "", false, nil
}

// DeleteTarget removes a target. Not used by the orchestration flow
// itself, but exposed for operator cleanup.
func (s *Session) DeleteTarget(ctx context.Context, targetID string) error {
	cmd := deleteTargetCommand{TargetID: targetID}

	var resp deleteTargetResponse
	if err := s.roundTrip(ctx, "delete_target", &cmd, &resp); err != nil {
		return err
	}
	if !resp.ok() {
		return s.remoteError("delete_target", &resp)
	}
	return nil
}

// CreateTask binds a target to a scan configuration and scanner, returning
// the engine-assigned task identifier.
func (s *Session) CreateTask(ctx context.Context, name, configID, targetID, scannerID string) (string, error) {
	cmd := createTaskCommand{
		Name:    name,
		Config:  idRef{ID: configID},
		Target:  idRef{ID: targetID},
		Scanner: idRef{ID: scannerID},
	}

	var resp createTaskResponse
	if err := s.roundTrip(ctx, "create_task", &cmd, &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", s.remoteError("create_task", &resp)
	}
	return resp.ID, nil
}

// StartTask starts a created task and returns the report identifier the
// engine assigns to the run.
func (s *Session) StartTask(ctx context.Context, taskID string) (string, error) {
	cmd := startTaskCommand{TaskID: taskID}

	var resp startTaskResponse
	if err := s.roundTrip(ctx, "start_task", &cmd, &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", s.remoteError("start_task", &resp)
	}
	return resp.ReportID, nil
}

// GetTaskStatus returns the engine's native status for a task.
func (s *Session) GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	cmd := getTasksCommand{TaskID: taskID}

	var resp getTasksResponse
	if err := s.roundTrip(ctx, "get_tasks", &cmd, &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", s.remoteError("get_tasks", &resp)
	}
	if len(resp.Tasks) == 0 {
		return "", errors.NewProtocolError(errors.CodeNotFound,
			"Task not found on engine", "get_tasks")
	}
	return TaskStatus(resp.Tasks[0].Status), nil
}

// GetReport fetches the raw report for a completed (or running) scan.
func (s *Session) GetReport(ctx context.Context, reportID, filter string) (*Report, error) {
	cmd := getReportsCommand{
		ReportID: reportID,
		Details:  "1",
		Filter:   filter,
	}

	var resp getReportsResponse
	if err := s.roundTrip(ctx, "get_reports", &cmd, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, s.remoteError("get_reports", &resp)
	}
	return &resp.Report, nil
}

// GetConfigIDByName resolves a scan configuration by its exact name.
func (s *Session) GetConfigIDByName(ctx context.Context, name string) (string, error) {
	var resp getConfigsResponse
	if err := s.roundTrip(ctx, "get_configs", &getConfigsCommand{}, &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", s.remoteError("get_configs", &resp)
	}

	for _, cfg := range resp.Configs {
		if cfg.Name == name {
			return cfg.ID, nil
		}
	}
	return "", errors.NewProtocolError(errors.CodeNotFound,
		"Scan config not found: "+name, "get_configs")
}

// GetScannerIDByName resolves a scanner by its exact name.
func (s *Session) GetScannerIDByName(ctx context.Context, name string) (string, error) {
	var resp getScannersResponse
	if err := s.roundTrip(ctx, "get_scanners", &getScannersCommand{}, &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", s.remoteError("get_scanners", &resp)
	}

	for _, scanner := range resp.Scanners {
		if scanner.Name == name {
			return scanner.ID, nil
		}
	}
	return "", errors.NewProtocolError(errors.CodeNotFound,
		"Scanner not found: "+name, "get_scanners")
}

// Close releases the underlying connection. Safe to call more than once
// and on every exit path.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
		s.metrics.RecordSessionDuration(time.Since(s.openedAt))
	})
	return s.closeErr
}

// Broken reports whether a protocol fault invalidated this session. A
// broken session must be discarded; the manager never retries on it.
func (s *Session) Broken() bool {
	return s.broken
}

// roundTrip sends one command and decodes its response. Any transport or
// decode fault marks the session broken.
func (s *Session) roundTrip(ctx context.Context, command string, req, resp interface{}) error {
	if s.broken {
		return errors.NewProtocolError(errors.CodeConnection,
			"Session invalidated by previous fault", command)
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapProtocolError(errors.CodeCanceled, "Context finished", command, err)
	}

	deadline := time.Now().Add(s.config.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		s.broken = true
		return errors.WrapProtocolError(errors.CodeConnection, "Failed to set deadline", command, err)
	}

	// Unblock the socket when the context is canceled mid round-trip.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()

	started := time.Now()
	defer func() {
		s.metrics.RecordGMPDuration(command, time.Since(started))
	}()

	payload, err := xml.Marshal(req)
	if err != nil {
		return errors.WrapProtocolError(errors.CodeUnknown, "Failed to encode command", command, err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		s.broken = true
		return s.transportError(ctx, command, "Failed to send command", err)
	}

	if err := s.decoder.Decode(resp); err != nil {
		s.broken = true
		return s.transportError(ctx, command, "Failed to read response", err)
	}

	if r, ok := resp.(gmpResponse); ok {
		code, _ := r.statusInfo()
		s.metrics.IncrementGMPCommands(command, code)
	}
	return nil
}

// transportError classifies a transport fault as timeout, cancellation or
// connection error.
func (s *Session) transportError(ctx context.Context, command, message string, err error) error {
	code := errors.CodeConnection
	switch {
	case ctx.Err() == context.Canceled:
		code = errors.CodeCanceled
	case ctx.Err() == context.DeadlineExceeded:
		code = errors.CodeTimeout
	default:
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			code = errors.CodeTimeout
		}
	}
	s.metrics.IncrementGMPErrors(command, string(code))
	s.logger.ErrorSession(message, err, "command", command)
	return errors.WrapProtocolError(code, message, command, err)
}

// remoteError converts a non-2xx engine response into a protocol error.
func (s *Session) remoteError(command string, resp gmpResponse) error {
	code, text := resp.statusInfo()
	errCode := errors.CodeRemoteObject
	if code == "404" {
		errCode = errors.CodeNotFound
	}
	s.metrics.IncrementGMPErrors(command, string(errCode))
	return errors.NewProtocolError(errCode,
		"Engine refused command: "+text, command).WithStatus(code)
}
