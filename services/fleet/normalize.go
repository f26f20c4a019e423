package fleet

import (
	"strings"
	"time"
)

// NormalizeDevices maps provider devices to vehicles. Devices without an id are dropped.
func NormalizeDevices(devices []Device) []Vehicle {
	vehicles := make([]Vehicle, 0, len(devices))
	for _, d := range devices {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		vehicles = append(vehicles, Vehicle{
			ID:           id,
			Name:         strings.TrimSpace(d.Name),
			SerialNumber: d.SerialNumber,
			VIN:          d.VehicleIdentificationNumber,
			LicensePlate: d.LicensePlate,
			DeviceType:   d.DeviceType,
			ActiveFrom:   parseTime(d.ActiveFrom),
			ActiveTo:     parseTime(d.ActiveTo),
		})
	}
	return vehicles
}

// NormalizeStatuses maps provider status records to vehicle statuses.
// Records that do not reference a device are dropped.
func NormalizeStatuses(statuses []DeviceStatusInfo) []VehicleStatus {
	out := make([]VehicleStatus, 0, len(statuses))
	for _, s := range statuses {
		id := strings.TrimSpace(s.Device.ID)
		if id == "" {
			continue
		}
		out = append(out, VehicleStatus{
			VehicleID:            id,
			Latitude:             s.Latitude,
			Longitude:            s.Longitude,
			Speed:                s.Speed,
			Bearing:              s.Bearing,
			IsDriving:            s.IsDriving,
			IsCommunicating:      s.IsDeviceCommunicating,
			RecordedAt:           parseTime(s.DateTime),
			CurrentStateDuration: s.CurrentStateDuration,
		})
	}
	return out
}

// JoinOverview pairs every vehicle with the status that references it.
func JoinOverview(vehicles []Vehicle, statuses []VehicleStatus) []VehicleOverview {
	byVehicle := make(map[string]VehicleStatus, len(statuses))
	for _, s := range statuses {
		byVehicle[s.VehicleID] = s
	}

	overview := make([]VehicleOverview, 0, len(vehicles))
	for _, v := range vehicles {
		item := VehicleOverview{Vehicle: v}
		if s, ok := byVehicle[v.ID]; ok {
			status := s
			item.Status = &status
		}
		overview = append(overview, item)
	}
	return overview
}

// parseTime accepts RFC3339 with or without fractional seconds.
func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
