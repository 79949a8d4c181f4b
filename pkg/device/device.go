// Package device provides types and utilities for HomematicIP device and
// group representation. Field values the access point did not report are
// modelled as nil pointers so that absent capabilities never turn into
// false zero readings.
package device

import (
	"fmt"

	"github.com/auhlig/homematicip-exporter/internal/types"
)

// Functional channel types reported by the access point. One device
// carries a base channel (index 0) plus one or more functional channels.
const (
	ChannelDeviceBase                    = "DEVICE_BASE"
	ChannelDeviceOperationLock           = "DEVICE_OPERATIONLOCK"
	ChannelDeviceSabotage                = "DEVICE_SABOTAGE"
	ChannelWallMountedThermostatPro      = "WALL_MOUNTED_THERMOSTAT_PRO_CHANNEL"
	ChannelWallMountedThermostatNoScreen = "WALL_MOUNTED_THERMOSTAT_WITHOUT_DISPLAY_CHANNEL"
	ChannelClimateSensor                 = "CLIMATE_SENSOR_CHANNEL"
	ChannelHeatingThermostat             = "HEATING_THERMOSTAT_CHANNEL"
	ChannelShutterContact                = "SHUTTER_CONTACT_CHANNEL"
	ChannelRotaryHandle                  = "ROTARY_HANDLE_CHANNEL"
	ChannelSwitch                        = "SWITCH_CHANNEL"
	ChannelSwitchMeasuring               = "SWITCH_MEASURING_CHANNEL"
	ChannelShutter                       = "SHUTTER_CHANNEL"
)

// Group types relevant to the exporter.
const (
	GroupTypeMeta    = "META"
	GroupTypeHeating = "HEATING"
)

// Window states reported by contact sensors.
const (
	WindowStateClosed = "CLOSED"
	WindowStateOpen   = "OPEN"
	WindowStateTilted = "TILTED"
)

// Metric names emitted by devices and groups. The unit conventions are
// fixed: temperatures in degrees Celsius, humidity and positions as 0-100
// percent floats, booleans as 0/1, contact state as 0=CLOSED, 1=OPEN,
// 2=TILTED. Changing any of these breaks downstream dashboards.
const (
	MetricTemperatureActual   types.MetricName = "temperature_actual"
	MetricTemperatureSetpoint types.MetricName = "temperature_setpoint"
	MetricHumidityActual      types.MetricName = "humidity_actual"
	MetricValvePosition       types.MetricName = "valve_position"
	MetricContactState        types.MetricName = "contact_state"
	MetricShutterLevel        types.MetricName = "shutter_level"
	MetricSwitchState         types.MetricName = "switch_state"
	MetricPowerConsumption    types.MetricName = "power_consumption_watts"
	MetricEnergyCounter       types.MetricName = "energy_counter_kwh"
	MetricBatteryLow          types.MetricName = "battery_low"
	MetricUnreachable         types.MetricName = "unreachable"
	MetricRSSI                types.MetricName = "rssi_dbm"
	MetricOperationLock       types.MetricName = "operation_lock"
)

// Snapshot is an immutable point-in-time view of the whole installation as
// returned by one getCurrentState call. MalformedObjects counts entries of
// the raw response that could not be decoded and were dropped.
type Snapshot struct {
	Home             Home
	Devices          map[string]Device
	Groups           map[string]Group
	MalformedObjects int
}

// Home carries installation-wide information.
type Home struct {
	CurrentAPVersion string `json:"currentAPVersion"`
}

// Device represents one HomematicIP device with its functional channels.
type Device struct {
	ID                 string                       `json:"id"`
	Label              string                       `json:"label"`
	Type               string                       `json:"type"`
	FunctionalChannels map[string]FunctionalChannel `json:"functionalChannels"`
}

// FunctionalChannel is the union of all channel fields the exporter reads.
// The vendor reports each channel as a flat object keyed by
// functionalChannelType; fields not applicable to a channel type stay nil.
type FunctionalChannel struct {
	Type                    string   `json:"functionalChannelType"`
	LowBat                  *bool    `json:"lowBat"`
	Unreach                 *bool    `json:"unreach"`
	RSSIDeviceValue         *float64 `json:"rssiDeviceValue"`
	OperationLockActive     *bool    `json:"operationLockActive"`
	ActualTemperature       *float64 `json:"actualTemperature"`
	SetPointTemperature     *float64 `json:"setPointTemperature"`
	Humidity                *float64 `json:"humidity"`
	ValvePosition           *float64 `json:"valvePosition"`
	WindowState             *string  `json:"windowState"`
	ShutterLevel            *float64 `json:"shutterLevel"`
	On                      *bool    `json:"on"`
	CurrentPowerConsumption *float64 `json:"currentPowerConsumption"`
	EnergyCounter           *float64 `json:"energyCounter"`
}

// Group represents one HomematicIP group. META groups model rooms; HEATING
// groups aggregate climate readings for a room.
type Group struct {
	ID                  string       `json:"id"`
	Label               string       `json:"label"`
	Type                string       `json:"type"`
	Channels            []ChannelRef `json:"channels"`
	ActualTemperature   *float64     `json:"actualTemperature"`
	SetPointTemperature *float64     `json:"setPointTemperature"`
	Humidity            *float64     `json:"humidity"`
}

// ChannelRef links a group to one channel of a member device.
type ChannelRef struct {
	DeviceID     string `json:"deviceId"`
	ChannelIndex int    `json:"channelIndex"`
}

// Measurement is one metric/value pair extracted from a channel or group.
type Measurement struct {
	Metric types.MetricName
	Value  float64
}

// Reading is one fully labelled observation produced by the adapter.
type Reading struct {
	DeviceID    types.DeviceID
	DeviceLabel types.DeviceLabel
	DeviceType  string
	Room        types.RoomName
	Metric      types.MetricName
	Value       float64
}

// Validate checks if the device has the fields required to label metrics.
func (d Device) Validate() error {
	if d.ID == "" {
		return types.ErrInvalidDeviceID
	}
	if d.Label == "" {
		return types.ErrInvalidDeviceLabel
	}
	return nil
}

// Known reports whether the exporter understands this channel type.
func (ch FunctionalChannel) Known() bool {
	switch ch.Type {
	case ChannelDeviceBase, ChannelDeviceOperationLock, ChannelDeviceSabotage,
		ChannelWallMountedThermostatPro, ChannelWallMountedThermostatNoScreen,
		ChannelClimateSensor, ChannelHeatingThermostat,
		ChannelShutterContact, ChannelRotaryHandle,
		ChannelSwitch, ChannelSwitchMeasuring, ChannelShutter:
		return true
	}
	return false
}

// Measurements extracts all metric values this channel exposes. A channel
// only emits metrics for capabilities it actually reported; absent fields
// emit nothing. Malformed enum values are returned as errors and do not
// abort extraction of the remaining fields.
func (ch FunctionalChannel) Measurements() ([]Measurement, []error) {
	var out []Measurement
	var errs []error

	switch ch.Type {
	case ChannelDeviceBase, ChannelDeviceOperationLock, ChannelDeviceSabotage:
		if ch.LowBat != nil {
			out = append(out, Measurement{MetricBatteryLow, boolToFloat64(*ch.LowBat)})
		}
		if ch.Unreach != nil {
			out = append(out, Measurement{MetricUnreachable, boolToFloat64(*ch.Unreach)})
		}
		if ch.RSSIDeviceValue != nil {
			out = append(out, Measurement{MetricRSSI, *ch.RSSIDeviceValue})
		}
		if ch.OperationLockActive != nil {
			out = append(out, Measurement{MetricOperationLock, boolToFloat64(*ch.OperationLockActive)})
		}

	case ChannelWallMountedThermostatPro, ChannelWallMountedThermostatNoScreen, ChannelClimateSensor:
		if ch.ActualTemperature != nil {
			out = append(out, Measurement{MetricTemperatureActual, *ch.ActualTemperature})
		}
		if ch.SetPointTemperature != nil {
			out = append(out, Measurement{MetricTemperatureSetpoint, *ch.SetPointTemperature})
		}
		if ch.Humidity != nil {
			out = append(out, Measurement{MetricHumidityActual, *ch.Humidity})
		}

	case ChannelHeatingThermostat:
		if ch.ValvePosition != nil {
			out = append(out, Measurement{MetricValvePosition, *ch.ValvePosition * 100})
		}
		if ch.SetPointTemperature != nil {
			out = append(out, Measurement{MetricTemperatureSetpoint, *ch.SetPointTemperature})
		}

	case ChannelShutterContact, ChannelRotaryHandle:
		if ch.WindowState != nil {
			if v, err := windowStateValue(*ch.WindowState); err != nil {
				errs = append(errs, err)
			} else {
				out = append(out, Measurement{MetricContactState, v})
			}
		}

	case ChannelSwitch, ChannelSwitchMeasuring:
		if ch.On != nil {
			out = append(out, Measurement{MetricSwitchState, boolToFloat64(*ch.On)})
		}
		if ch.CurrentPowerConsumption != nil {
			out = append(out, Measurement{MetricPowerConsumption, *ch.CurrentPowerConsumption})
		}
		if ch.EnergyCounter != nil {
			out = append(out, Measurement{MetricEnergyCounter, *ch.EnergyCounter})
		}

	case ChannelShutter:
		if ch.ShutterLevel != nil {
			out = append(out, Measurement{MetricShutterLevel, *ch.ShutterLevel * 100})
		}
	}

	return out, errs
}

// Measurements extracts the climate readings a HEATING group aggregates.
// Other group types emit nothing.
func (g Group) Measurements() []Measurement {
	if g.Type != GroupTypeHeating {
		return nil
	}

	var out []Measurement
	if g.ActualTemperature != nil {
		out = append(out, Measurement{MetricTemperatureActual, *g.ActualTemperature})
	}
	if g.SetPointTemperature != nil {
		out = append(out, Measurement{MetricTemperatureSetpoint, *g.SetPointTemperature})
	}
	if g.Humidity != nil {
		out = append(out, Measurement{MetricHumidityActual, *g.Humidity})
	}
	return out
}

// windowStateValue maps the vendor contact enum onto the exported gauge
// value. The mapping is part of the exporter's stable contract.
func windowStateValue(state string) (float64, error) {
	switch state {
	case WindowStateClosed:
		return 0, nil
	case WindowStateOpen:
		return 1, nil
	case WindowStateTilted:
		return 2, nil
	}
	return 0, fmt.Errorf("unknown window state %q", state)
}

func boolToFloat64(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
