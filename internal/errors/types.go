// Package errors provides error types and handling utilities for the
// HomematicIP exporter.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error constants for common validation errors
var (
	ErrInvalidSession  = errors.New("invalid session")
	ErrInvalidRegistry = errors.New("invalid registry")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidTimeout  = errors.New("invalid timeout")
)

// ConfigurationError represents an error in configuration validation.
// Configuration errors are fatal at startup.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in field %s (value: %s): %s", e.Field, e.Value, e.Reason)
}

// APIError represents an error that occurred while talking to the
// HomematicIP cloud API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Retryable  bool
	AuthFailed bool
	Underlying error
	Timestamp  time.Time
}

func (e APIError) Error() string {
	return fmt.Sprintf("API error on %s (status %d): %v", e.Endpoint, e.StatusCode, e.Underlying)
}

func (e APIError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether the API error is retryable on the next cycle.
func (e APIError) IsRetryable() bool {
	return e.Retryable
}

// NewAPIError creates a new API error with the provided details. Server
// errors, rate limits and timeouts are retryable; 401/403 are flagged as
// authentication failures.
func NewAPIError(endpoint string, statusCode int, err error) *APIError {
	retryable := statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408
	authFailed := statusCode == 401 || statusCode == 403
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Retryable:  retryable,
		AuthFailed: authFailed,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// IsAuthError reports whether err (or any error it wraps) is an APIError
// caused by rejected credentials.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.AuthFailed
	}
	return false
}

// IsRetryable reports whether err (or any error it wraps) is an APIError
// worth retrying on the next collection cycle. Unknown errors are treated
// as retryable so the collector keeps running.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return true
}

// SchemaConflictError is returned when a metric descriptor is registered
// twice with differing label schemas. This indicates a programming error in
// the adapter and is a defensive guard rather than an expected condition.
type SchemaConflictError struct {
	Metric      string
	Registered  []string
	Conflicting []string
}

func (e SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict for metric %s: registered labels %v, got %v",
		e.Metric, e.Registered, e.Conflicting)
}

// CollectError represents a failure during one collection cycle for a
// specific object in the snapshot.
type CollectError struct {
	DeviceID    string
	DeviceLabel string
	Type        string
	Underlying  error
}

func (e CollectError) Error() string {
	return fmt.Sprintf("device %s (%s): %s: %v", e.DeviceLabel, e.DeviceID, e.Type, e.Underlying)
}

func (e CollectError) Unwrap() error {
	return e.Underlying
}
