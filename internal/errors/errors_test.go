package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		CodeUnknown,
		CodeValidation,
		CodeConfiguration,
		CodeTimeout,
		CodeCanceled,
		CodeConnection,
		CodeAuth,
		CodeRemoteObject,
		CodeAlreadyStarted,
		CodeNotReady,
		CodeParse,
		CodeNotFound,
		CodeDatabaseConnection,
		CodeDatabaseQuery,
	}

	for _, code := range codes {
		if string(code) == "" {
			t.Errorf("Error code %v should not be empty", code)
		}
	}
}

func TestProtocolError(t *testing.T) {
	t.Run("basic error creation", func(t *testing.T) {
		err := NewProtocolError(CodeRemoteObject, "create refused", "create_target")
		if err.Code != CodeRemoteObject {
			t.Errorf("Expected code %s, got %s", CodeRemoteObject, err.Code)
		}
		if err.Command != "create_target" {
			t.Errorf("Expected command 'create_target', got '%s'", err.Command)
		}
	})

	t.Run("error message includes command", func(t *testing.T) {
		err := NewProtocolError(CodeRemoteObject, "create refused", "create_task")
		expected := "[REMOTE_OBJECT] create refused (command: create_task)"
		if err.Error() != expected {
			t.Errorf("Expected '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("error message without command", func(t *testing.T) {
		err := &ProtocolError{Code: CodeConnection, Message: "connect failed"}
		expected := "[CONNECTION] connect failed"
		if err.Error() != expected {
			t.Errorf("Expected '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("error wrapping", func(t *testing.T) {
		cause := fmt.Errorf("connection reset")
		err := WrapProtocolError(CodeConnection, "round trip failed", "get_tasks", cause)
		if !errors.Is(err, cause) {
			t.Error("Wrapped error should match the cause")
		}
	})

	t.Run("with status", func(t *testing.T) {
		err := NewProtocolError(CodeRemoteObject, "refused", "start_task").WithStatus("400")
		if err.Status != "400" {
			t.Errorf("Expected status '400', got '%s'", err.Status)
		}
	})
}

func TestScanError(t *testing.T) {
	t.Run("error with scan id", func(t *testing.T) {
		err := NewScanErrorWithID(CodeNotFound, "scan not found", "abc-123")
		expected := "[NOT_FOUND] scan not found (scan: abc-123)"
		if err.Error() != expected {
			t.Errorf("Expected '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("error with target", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeValidation, "bad target", "not a host!")
		expected := "[VALIDATION] bad target (target: not a host!)"
		if err.Error() != expected {
			t.Errorf("Expected '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("context", func(t *testing.T) {
		err := NewScanError(CodeAlreadyStarted, "task already started").
			WithContext("task_id", "t-1")
		if err.Context["task_id"] != "t-1" {
			t.Error("Context should carry task_id")
		}
	})

	t.Run("error wrapping", func(t *testing.T) {
		cause := fmt.Errorf("boom")
		err := WrapScanError(CodeParse, "report unreadable", cause)
		if !errors.Is(err, cause) {
			t.Error("Wrapped error should match the cause")
		}
	})
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"protocol error", NewProtocolError(CodeAuth, "m", "authenticate"), CodeAuth},
		{"scan error", NewScanError(CodeNotReady, "m"), CodeNotReady},
		{"database error", WrapDatabaseError(CodeDatabaseQuery, "m", "save", nil), CodeDatabaseQuery},
		{"config error", NewConfigFieldError(CodeConfiguration, "m", "gvm.host", nil), CodeConfiguration},
		{"plain error", fmt.Errorf("plain"), CodeUnknown},
		{"nil-ish unknown", errors.New(""), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %s, want %s", got, tt.want)
			}
			if !IsCode(tt.err, tt.want) {
				t.Errorf("IsCode(%s) should be true", tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewProtocolError(CodeConnection, "m", "")) {
		t.Error("Connection errors should be retryable")
	}
	if !IsRetryable(NewScanError(CodeTimeout, "m")) {
		t.Error("Timeouts should be retryable")
	}
	if IsRetryable(NewScanError(CodeAlreadyStarted, "m")) {
		t.Error("AlreadyStarted must never be retried")
	}
	if IsRetryable(NewScanError(CodeValidation, "m")) {
		t.Error("Validation errors must never be retried")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewScanError(CodeValidation, "m"), http.StatusBadRequest},
		{ErrScanNotFound("x"), http.StatusNotFound},
		{ErrAlreadyStarted("t"), http.StatusConflict},
		{NewProtocolError(CodeConnection, "m", ""), http.StatusBadGateway},
		{NewProtocolError(CodeAuth, "m", "authenticate"), http.StatusBadGateway},
		{NewProtocolError(CodeRemoteObject, "m", "create_target"), http.StatusBadGateway},
		{NewScanError(CodeParse, "m"), http.StatusBadGateway},
		{NewScanError(CodeTimeout, "m"), http.StatusGatewayTimeout},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCommonConstructors(t *testing.T) {
	if code := GetCode(ErrInvalidTarget("x")); code != CodeValidation {
		t.Errorf("ErrInvalidTarget code = %s", code)
	}
	if code := GetCode(ErrScanNotReady("s")); code != CodeNotReady {
		t.Errorf("ErrScanNotReady code = %s", code)
	}
	if code := GetCode(ErrAuthFailed(nil)); code != CodeAuth {
		t.Errorf("ErrAuthFailed code = %s", code)
	}
	if code := GetCode(ErrEngineUnreachable(nil)); code != CodeConnection {
		t.Errorf("ErrEngineUnreachable code = %s", code)
	}
}
