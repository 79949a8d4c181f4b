// Package types provides core domain types and validation utilities for the
// HomematicIP exporter. It defines fundamental types like DeviceID,
// DeviceLabel, MetricName and RoomName along with their validation logic.
package types

import (
	"errors"
	"fmt"
	"regexp"
)

// DeviceID represents the unique identifier the access point assigns to a
// device or group (a UUID-like string).
type DeviceID string

// DeviceLabel represents the human-readable label of a device or group.
type DeviceLabel string

// MetricName represents a Prometheus metric name.
type MetricName string

// RoomName represents the label of a META group, which HomematicIP uses to
// model rooms.
type RoomName string

var (
	// ErrInvalidDeviceID is returned when a device ID is invalid.
	ErrInvalidDeviceID = errors.New("invalid device ID")
	// ErrInvalidDeviceLabel is returned when a device label is invalid.
	ErrInvalidDeviceLabel = errors.New("invalid device label")
	// ErrInvalidMetricName is returned when a metric name is invalid.
	ErrInvalidMetricName = errors.New("invalid metric name")

	metricNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// NewDeviceID creates a new DeviceID with validation.
func NewDeviceID(id string) (DeviceID, error) {
	if id == "" {
		return "", fmt.Errorf("device ID cannot be empty")
	}
	if len(id) > 64 {
		return "", fmt.Errorf("device ID too long: %d characters", len(id))
	}
	return DeviceID(id), nil
}

// IsValid checks if the DeviceID is valid.
func (d DeviceID) IsValid() bool {
	return len(d) > 0 && len(d) <= 64
}

func (d DeviceID) String() string {
	return string(d)
}

// NewDeviceLabel creates a new DeviceLabel with validation. Labels are
// free-form text entered in the vendor app, so only length is constrained.
func NewDeviceLabel(label string) (DeviceLabel, error) {
	if label == "" {
		return "", fmt.Errorf("device label cannot be empty")
	}
	if len(label) > 253 {
		return "", fmt.Errorf("device label too long: %d characters", len(label))
	}
	return DeviceLabel(label), nil
}

// IsValid checks if the DeviceLabel meets validation requirements.
func (d DeviceLabel) IsValid() bool {
	return len(d) > 0 && len(d) <= 253
}

func (d DeviceLabel) String() string {
	return string(d)
}

// NewMetricName creates a new MetricName with validation.
func NewMetricName(name string) (MetricName, error) {
	if name == "" {
		return "", fmt.Errorf("metric name cannot be empty")
	}
	if !metricNameRegex.MatchString(name) {
		return "", fmt.Errorf("invalid metric name format: %s", name)
	}
	return MetricName(name), nil
}

// IsValid checks if the MetricName meets validation requirements.
func (m MetricName) IsValid() bool {
	return len(m) > 0 && metricNameRegex.MatchString(string(m))
}

func (m MetricName) String() string {
	return string(m)
}

func (r RoomName) String() string {
	return string(r)
}
