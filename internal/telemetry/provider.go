package telemetry

import (
	"time"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

type Provider interface {
	Get() *Telemetry
}

// Telemetry is the latest known state of a sensor
type Telemetry struct {
	Timestamp     time.Time        `json:"timestamp"`               // Time of the last folded measurement
	FrameCount    uint32           `json:"frameCount"`              // Sensor frame counter of the last IMU sample
	Roll          *float64         `json:"roll,omitempty"`          // Roll angle in degrees
	Pitch         *float64         `json:"pitch,omitempty"`         // Pitch angle in degrees
	Yaw           *float64         `json:"yaw,omitempty"`           // Yaw angle in degrees
	AccelX        *float64         `json:"accelX,omitempty"`        // X-axis acceleration in m/s²
	AccelY        *float64         `json:"accelY,omitempty"`        // Y-axis acceleration in m/s²
	AccelZ        *float64         `json:"accelZ,omitempty"`        // Z-axis acceleration in m/s²
	Altitude      *float64         `json:"altitude,omitempty"`      // Barometric altitude in meters
	Temperature   *float64         `json:"temperature,omitempty"`   // Degrees Celsius
	Latitude      *float64         `json:"latitude,omitempty"`      // GPS latitude in degrees
	Longitude     *float64         `json:"longitude,omitempty"`     // GPS longitude in degrees
	Height        *float64         `json:"height,omitempty"`        // GPS height above mean sea level in meters
	GroundSpeed   *float64         `json:"groundSpeed,omitempty"`   // Ground speed in m/s
	GroundCourse  *float64         `json:"groundCourse,omitempty"`  // Ground course (heading) in degrees
	NumSatellites *uint8           `json:"numSatellites,omitempty"` // Satellites used in the fix
	FixType       *zen.GnssFixType `json:"fixType,omitempty"`       // Quality of the last fix
	Disconnected  *zen.Error       `json:"disconnected,omitempty"`  // Set once the sensor disconnected
}
