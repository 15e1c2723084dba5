package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrDSNRequired        = sterrors.New("faultline: DSN is required")
	ErrInvalidDSN         = sterrors.New("faultline: DSN is malformed")
	ErrUnknownHook        = sterrors.New("faultline: unknown hook library")
	ErrUnknownTransport   = sterrors.New("faultline: unknown report transport")
	ErrClientRequired     = sterrors.New("faultline: client is required")
	ErrHandlerRequired    = sterrors.New("faultline: next handler is required")
	ErrConsumerRequired   = sterrors.New("faultline: consumer is required")
	ErrConsumerNameNeeded = sterrors.New("faultline: consumer name is required")
	ErrPublisherRequired  = sterrors.New("faultline: publisher is required")
	ErrTopicRequired      = sterrors.New("faultline: topic is required")
	ErrClientClosed       = sterrors.New("faultline: client is closed")
	ErrQueueFull          = sterrors.New("faultline: report queue is full")
	ErrSubscribeMissing   = sterrors.New("faultline: transport does not support subscribing")
	ErrReportTooLarge     = sterrors.New("faultline: report exceeds the transport message size limit")
)

// ConfigurationError reports a client configuration that cannot be used.
// It is returned from client construction and never raised lazily.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("faultline: invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("faultline: invalid configuration for %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError wraps err for the named field.
func NewConfigurationError(field string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, Err: err}
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return sterrors.As(err, &cfgErr)
}

// TransportError wraps a failure returned by a report transport.
type TransportError struct {
	Transport string
	ReportID  string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("faultline: transport %q failed to deliver report %s: %v", e.Transport, e.ReportID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
