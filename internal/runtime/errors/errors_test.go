package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrDSNRequired", ErrDSNRequired, "faultline: DSN is required"},
		{"ErrInvalidDSN", ErrInvalidDSN, "faultline: DSN is malformed"},
		{"ErrUnknownHook", ErrUnknownHook, "faultline: unknown hook library"},
		{"ErrUnknownTransport", ErrUnknownTransport, "faultline: unknown report transport"},
		{"ErrClientRequired", ErrClientRequired, "faultline: client is required"},
		{"ErrHandlerRequired", ErrHandlerRequired, "faultline: next handler is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "faultline: publisher is required"},
		{"ErrTopicRequired", ErrTopicRequired, "faultline: topic is required"},
		{"ErrClientClosed", ErrClientClosed, "faultline: client is closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("dsn", ErrDSNRequired)

	if got := err.Error(); got != "faultline: invalid configuration for dsn: faultline: DSN is required" {
		t.Errorf("unexpected message %q", got)
	}
	if !errors.Is(err, ErrDSNRequired) {
		t.Error("expected errors.Is to match the wrapped sentinel")
	}

	wrapped := fmt.Errorf("building client: %w", err)
	if !IsConfigurationError(wrapped) {
		t.Error("expected wrapped ConfigurationError to be detected")
	}
	if IsConfigurationError(errors.New("other")) {
		t.Error("plain errors are not configuration errors")
	}
}

func TestConfigurationErrorWithoutField(t *testing.T) {
	err := &ConfigurationError{Err: errors.New("bad")}
	if got := err.Error(); got != "faultline: invalid configuration: bad" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestTransportError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Transport: "kafka", ReportID: "01ABC", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected TransportError to unwrap to the cause")
	}
	want := `faultline: transport "kafka" failed to deliver report 01ABC: connection refused`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
