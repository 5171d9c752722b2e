package zen

import (
	"fmt"
	"math"
	"time"
)

// SensorHandle identifies an obtained sensor within a client.
type SensorHandle uint64

// ComponentHandle identifies a component (IMU, GNSS) of a sensor.
type ComponentHandle uint64

// ImuData is a single inertial measurement.
type ImuData struct {
	Timestamp  float64 // Sampling time in seconds since sensor start
	FrameCount uint32  // Sensor frame counter

	A    [3]float32 // Calibrated accelerometer in g
	ARaw [3]float32 // Raw accelerometer in g

	G1          [3]float32 // First gyroscope, aligned and calibrated, in deg/s
	G1Raw       [3]float32 // First gyroscope, raw, in deg/s
	G1BiasCalib [3]float32 // First gyroscope, bias calibrated, in deg/s
	G2          [3]float32 // Second gyroscope, aligned and calibrated, in deg/s
	G2Raw       [3]float32 // Second gyroscope, raw, in deg/s
	G2BiasCalib [3]float32 // Second gyroscope, bias calibrated, in deg/s

	B    [3]float32 // Calibrated magnetometer in µT
	BRaw [3]float32 // Raw magnetometer in µT

	W         [3]float32 // Angular velocity in deg/s
	R         [3]float32 // Euler angles (roll, pitch, yaw) in degrees
	Q         [4]float32 // Orientation quaternion (w, x, y, z)
	RotationM [9]float32 // Orientation as row-major rotation matrix
	LinAcc    [3]float32 // Linear acceleration without gravity in g

	Pressure    float32 // Barometric pressure in mBar
	Altitude    float32 // Barometric altitude in meters
	Temperature float32 // Temperature in degrees Celsius
}

// RotationFromQuaternion returns the row-major rotation matrix of the
// quaternion q (w, x, y, z). A zero quaternion yields the identity matrix.
func RotationFromQuaternion(q [4]float32) [9]float32 {
	w, x, y, z := float64(q[0]), float64(q[1]), float64(q[2]), float64(q[3])

	n := math.Sqrt(w*w + x*x + y*y + z*z)
	if n == 0 {
		return [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
	w, x, y, z = w/n, x/n, y/n, z/n

	return [9]float32{
		float32(1 - 2*(y*y+z*z)), float32(2 * (x*y - w*z)), float32(2 * (x*z + w*y)),
		float32(2 * (x*y + w*z)), float32(1 - 2*(x*x+z*z)), float32(2 * (y*z - w*x)),
		float32(2 * (x*z - w*y)), float32(2 * (y*z + w*x)), float32(1 - 2*(x*x+y*y)),
	}
}

// GnssFixType is the quality of a GNSS position fix.
type GnssFixType uint8

const (
	GnssFixNoFix GnssFixType = iota
	GnssFixDeadReckoningOnly
	GnssFix2D
	GnssFix3D
	GnssFixGnssAndDeadReckoning
	GnssFixTimeOnly
)

var gnssFixTypeNames = [...]string{"no fix", "dead reckoning", "2D", "3D", "GNSS + dead reckoning", "time only"}

func (t GnssFixType) String() string {
	if int(t) < len(gnssFixTypeNames) {
		return gnssFixTypeNames[t]
	}
	return fmt.Sprintf("fix type %d", uint8(t))
}

// CarrierPhaseSolution is the RTK carrier phase range solution state.
type CarrierPhaseSolution uint8

const (
	CarrierPhaseNone CarrierPhaseSolution = iota
	CarrierPhaseFloatAmbiguities
	CarrierPhaseFixedAmbiguities
)

func (c CarrierPhaseSolution) String() string {
	switch c {
	case CarrierPhaseNone:
		return "none"
	case CarrierPhaseFloatAmbiguities:
		return "float"
	case CarrierPhaseFixedAmbiguities:
		return "fixed"
	default:
		return fmt.Sprintf("carrier phase %d", uint8(c))
	}
}

// GnssData is a single satellite positioning measurement.
type GnssData struct {
	Timestamp float64 // Sampling time in seconds since sensor start

	Latitude           float64 // Degrees
	Longitude          float64 // Degrees
	HorizontalAccuracy float64 // Meters
	VerticalAccuracy   float64 // Meters
	Height             float64 // Meters above mean sea level
	Heading            float64 // Heading of motion in degrees
	HeadingAccuracy    float64 // Degrees
	Velocity           float64 // Ground speed in m/s
	VelocityAccuracy   float64 // m/s

	FixType              GnssFixType
	CarrierPhaseSolution CarrierPhaseSolution
	NumberSatellitesUsed uint8

	Year                 uint16
	Month                uint8
	Day                  uint8
	Hour                 uint8
	Minute               uint8
	Second               uint8
	NanoSecondCorrection int32
}

// Time returns the UTC time of the measurement as reported by the satellites.
// A measurement without date information returns the zero time.
func (g GnssData) Time() time.Time {
	if g.Year == 0 {
		return time.Time{}
	}
	return time.Date(int(g.Year), time.Month(g.Month), int(g.Day),
		int(g.Hour), int(g.Minute), int(g.Second), 0, time.UTC).
		Add(time.Duration(g.NanoSecondCorrection))
}

// SensorDesc describes a sensor located by device discovery.
type SensorDesc struct {
	Name         string `json:"name" yaml:"name"`
	SerialNumber string `json:"serialNumber,omitempty" yaml:"serialNumber"`
	IoType       string `json:"ioType" yaml:"ioType"`
	Identifier   string `json:"identifier" yaml:"identifier"` // IO system specific address, e.g. a device path
	BaudRate     uint32 `json:"baudRate,omitempty" yaml:"baudRate"`
}

func (d SensorDesc) String() string {
	if d.SerialNumber != "" {
		return fmt.Sprintf("%s:%s (%s)", d.IoType, d.Name, d.SerialNumber)
	}
	return fmt.Sprintf("%s:%s", d.IoType, d.Name)
}

// SensorDisconnected notifies that an obtained sensor became unavailable.
type SensorDisconnected struct {
	Error Error `json:"error"`
}

// SensorListingProgress reports the state of an ongoing device discovery.
type SensorListingProgress struct {
	Progress float32 `json:"progress"` // [0, 1]
	Complete bool    `json:"complete"`
}
