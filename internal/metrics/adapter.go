package metrics

import (
	"log/slog"

	"github.com/auhlig/homematicip-exporter/internal/types"
	"github.com/auhlig/homematicip-exporter/pkg/device"
)

// GroupDeviceType is the device_type reading label for readings emitted by
// heating groups rather than physical devices.
const GroupDeviceType = "HEATING_GROUP"

// AdaptStats counts objects the adapter could not turn into readings.
type AdaptStats struct {
	UnknownChannels  int
	MalformedObjects int
	SkippedReadings  int
}

// Adapt normalizes one snapshot into a flat list of readings. It is a pure
// function over the snapshot: no I/O, no blocking, no registry access.
// Objects the exporter does not understand are counted and skipped, and a
// malformed field on one object never aborts adaptation of the rest.
func Adapt(snap *device.Snapshot) ([]device.Reading, AdaptStats) {
	stats := AdaptStats{MalformedObjects: snap.MalformedObjects}
	rooms := roomAssignments(snap)

	var readings []device.Reading

	for id, d := range snap.Devices {
		deviceID, err := types.NewDeviceID(id)
		if err != nil {
			slog.Warn("skipping device with invalid id", "id", id, "error", err)
			stats.MalformedObjects++
			continue
		}
		label, err := types.NewDeviceLabel(d.Label)
		if err != nil {
			slog.Warn("skipping device with invalid label", "id", id, "error", err)
			stats.MalformedObjects++
			continue
		}

		room := rooms[id]

		for _, ch := range d.FunctionalChannels {
			if !ch.Known() {
				slog.Debug("skipping unknown channel type",
					"device", d.Label, "channel_type", ch.Type)
				stats.UnknownChannels++
				continue
			}

			measurements, errs := ch.Measurements()
			for _, err := range errs {
				slog.Warn("skipping malformed reading",
					"device", d.Label, "channel_type", ch.Type, "error", err)
				stats.SkippedReadings++
			}
			for _, m := range measurements {
				readings = append(readings, device.Reading{
					DeviceID:    deviceID,
					DeviceLabel: label,
					DeviceType:  d.Type,
					Room:        room,
					Metric:      m.Metric,
					Value:       m.Value,
				})
			}
		}
	}

	for id, g := range snap.Groups {
		measurements := g.Measurements()
		if len(measurements) == 0 {
			continue
		}

		groupID, err := types.NewDeviceID(id)
		if err != nil {
			slog.Warn("skipping group with invalid id", "id", id, "error", err)
			stats.MalformedObjects++
			continue
		}
		label, err := types.NewDeviceLabel(g.Label)
		if err != nil {
			slog.Warn("skipping group with invalid label", "id", id, "error", err)
			stats.MalformedObjects++
			continue
		}

		for _, m := range measurements {
			readings = append(readings, device.Reading{
				DeviceID:    groupID,
				DeviceLabel: label,
				DeviceType:  GroupDeviceType,
				Room:        types.RoomName(g.Label),
				Metric:      m.Metric,
				Value:       m.Value,
			})
		}
	}

	return readings, stats
}

// roomAssignments maps device ids to the label of the META group that
// contains them. HomematicIP models rooms as META groups.
func roomAssignments(snap *device.Snapshot) map[string]types.RoomName {
	rooms := make(map[string]types.RoomName)
	for _, g := range snap.Groups {
		if g.Type != device.GroupTypeMeta || g.Label == "" {
			continue
		}
		for _, ref := range g.Channels {
			if ref.DeviceID != "" {
				rooms[ref.DeviceID] = types.RoomName(g.Label)
			}
		}
	}
	return rooms
}
