package fleet

import "time"

// Raw provider payloads. Snapshots are stored in exactly these shapes.

// Credentials identify an authenticated session with the telemetry provider.
type Credentials struct {
	Database  string `json:"database"`
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
}

// Device is a telematics unit as reported by the provider.
type Device struct {
	ID                          string `json:"id"`
	Name                        string `json:"name"`
	SerialNumber                string `json:"serialNumber,omitempty"`
	VehicleIdentificationNumber string `json:"vehicleIdentificationNumber,omitempty"`
	LicensePlate                string `json:"licensePlate,omitempty"`
	DeviceType                  string `json:"deviceType,omitempty"`
	ActiveFrom                  string `json:"activeFrom,omitempty"`
	ActiveTo                    string `json:"activeTo,omitempty"`
	Comment                     string `json:"comment,omitempty"`
}

// EntityRef points at another provider entity by id.
type EntityRef struct {
	ID string `json:"id"`
}

// DeviceStatusInfo is the provider's latest known state of a device.
type DeviceStatusInfo struct {
	Device                EntityRef `json:"device"`
	Latitude              float64   `json:"latitude"`
	Longitude             float64   `json:"longitude"`
	Speed                 float64   `json:"speed"`
	Bearing               float64   `json:"bearing"`
	DateTime              string    `json:"dateTime,omitempty"`
	IsDriving             bool      `json:"isDriving"`
	IsDeviceCommunicating bool      `json:"isDeviceCommunicating"`
	CurrentStateDuration  string    `json:"currentStateDuration,omitempty"`
}

// Normalized shapes served to clients.

// Vehicle is the stable, provider-independent view of a device.
type Vehicle struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SerialNumber string     `json:"serialNumber,omitempty"`
	VIN          string     `json:"vin,omitempty"`
	LicensePlate string     `json:"licensePlate,omitempty"`
	DeviceType   string     `json:"deviceType,omitempty"`
	ActiveFrom   *time.Time `json:"activeFrom,omitempty"`
	ActiveTo     *time.Time `json:"activeTo,omitempty"`
}

// VehicleStatus is the stable view of a device's latest state.
type VehicleStatus struct {
	VehicleID            string     `json:"vehicleId"`
	Latitude             float64    `json:"latitude"`
	Longitude            float64    `json:"longitude"`
	Speed                float64    `json:"speed"`
	Bearing              float64    `json:"bearing"`
	IsDriving            bool       `json:"isDriving"`
	IsCommunicating      bool       `json:"isCommunicating"`
	RecordedAt           *time.Time `json:"recordedAt,omitempty"`
	CurrentStateDuration string     `json:"currentStateDuration,omitempty"`
}

// VehicleOverview joins a vehicle with its status, when one is known.
type VehicleOverview struct {
	Vehicle
	Status *VehicleStatus `json:"status,omitempty"`
}
