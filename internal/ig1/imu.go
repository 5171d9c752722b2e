package ig1

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// OutputConfig selects the fields transmitted in an IMU data packet and their
// encoding. Fields appear in the packet in bit order.
type OutputConfig uint32

const (
	OutputAccRaw OutputConfig = 1 << iota
	OutputAccCalibrated
	OutputGyro0Raw
	OutputGyro1Raw
	OutputGyro0BiasCalib
	OutputGyro1BiasCalib
	OutputGyro0AlignCalib
	OutputGyro1AlignCalib
	OutputMagRaw
	OutputMagCalib
	OutputAngularVel
	OutputQuaternion
	OutputEuler
	OutputLinAcc
	OutputPressure
	OutputAltitude
	OutputTemperature
)

const (
	// Output16Bit transmits every value as a scaled int16 instead of a float32.
	Output16Bit OutputConfig = 1 << 30
	// OutputRadians transmits angular values in radians instead of degrees.
	OutputRadians OutputConfig = 1 << 31

	outputFieldsMask OutputConfig = 1<<17 - 1
)

// DefaultOutputConfig is the factory output configuration of IG1 sensors.
const DefaultOutputConfig = OutputAccCalibrated | OutputGyro1AlignCalib | OutputMagCalib |
	OutputQuaternion | OutputEuler | OutputLinAcc

type accessor struct {
	set func(d *zen.ImuData, v []float32)
	get func(d *zen.ImuData) []float32
}

func vec3(dst func(d *zen.ImuData) *[3]float32) accessor {
	return accessor{
		set: func(d *zen.ImuData, v []float32) { copy(dst(d)[:], v) },
		get: func(d *zen.ImuData) []float32 { return dst(d)[:] },
	}
}

func scalar(dst func(d *zen.ImuData) *float32) accessor {
	return accessor{
		set: func(d *zen.ImuData, v []float32) { *dst(d) = v[0] },
		get: func(d *zen.ImuData) []float32 { return []float32{*dst(d)} },
	}
}

type imuField struct {
	bit      OutputConfig
	name     string
	count    int
	scale    float64 // int16 divisor
	radScale float64 // int16 divisor for radian output, zero if the field is not angular
	accessor
}

var imuFields = []imuField{
	{OutputAccRaw, "accRaw", 3, 1000, 0, vec3(func(d *zen.ImuData) *[3]float32 { return &d.ARaw })},
	{OutputAccCalibrated, "accCalibrated", 3, 1000, 0, vec3(func(d *zen.ImuData) *[3]float32 { return &d.A })},
	{OutputGyro0Raw, "gyro0Raw", 3, 10, 1000, vec3(func(d *zen.ImuData) *[3]float32 { return &d.G1Raw })},
	{OutputGyro1Raw, "gyro1Raw", 3, 10, 100, vec3(func(d *zen.ImuData) *[3]float32 { return &d.G2Raw })},
	{OutputGyro0BiasCalib, "gyro0BiasCalib", 3, 10, 1000, vec3(func(d *zen.ImuData) *[3]float32 { return &d.G1BiasCalib })},
	{OutputGyro1BiasCalib, "gyro1BiasCalib", 3, 10, 100, vec3(func(d *zen.ImuData) *[3]float32 { return &d.G2BiasCalib })},
	{OutputGyro0AlignCalib, "gyro0AlignCalib", 3, 10, 1000, vec3(func(d *zen.ImuData) *[3]float32 { return &d.G1 })},
	{OutputGyro1AlignCalib, "gyro1AlignCalib", 3, 10, 100, vec3(func(d *zen.ImuData) *[3]float32 { return &d.G2 })},
	{OutputMagRaw, "magRaw", 3, 100, 0, vec3(func(d *zen.ImuData) *[3]float32 { return &d.BRaw })},
	{OutputMagCalib, "magCalib", 3, 100, 0, vec3(func(d *zen.ImuData) *[3]float32 { return &d.B })},
	{OutputAngularVel, "angularVel", 3, 100, 100, vec3(func(d *zen.ImuData) *[3]float32 { return &d.W })},
	{OutputQuaternion, "quaternion", 4, 10000, 0, accessor{
		set: func(d *zen.ImuData, v []float32) { copy(d.Q[:], v) },
		get: func(d *zen.ImuData) []float32 { return d.Q[:] },
	}},
	{OutputEuler, "euler", 3, 100, 10000, vec3(func(d *zen.ImuData) *[3]float32 { return &d.R })},
	{OutputLinAcc, "linAcc", 3, 1000, 0, vec3(func(d *zen.ImuData) *[3]float32 { return &d.LinAcc })},
	{OutputPressure, "pressure", 1, 10, 0, scalar(func(d *zen.ImuData) *float32 { return &d.Pressure })},
	{OutputAltitude, "altitude", 1, 10, 0, scalar(func(d *zen.ImuData) *float32 { return &d.Altitude })},
	{OutputTemperature, "temperature", 1, 100, 0, scalar(func(d *zen.ImuData) *float32 { return &d.Temperature })},
}

var flagNames = []struct {
	bit  OutputConfig
	name string
}{
	{Output16Bit, "16bit"},
	{OutputRadians, "radians"},
}

// PacketSize returns the size in bytes of an IMU data packet for c.
func (c OutputConfig) PacketSize() int {
	width := 4
	if c&Output16Bit != 0 {
		width = 2
	}

	size := 4 // timestamp
	for _, f := range imuFields {
		if c&f.bit != 0 {
			size += f.count * width
		}
	}
	return size
}

// Names returns the names of the enabled fields and flags.
func (c OutputConfig) Names() []string {
	var names []string
	for _, f := range imuFields {
		if c&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	for _, f := range flagNames {
		if c&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

func (c OutputConfig) String() string {
	return strings.Join(c.Names(), "|")
}

// Validate checks that c enables at least one field and no unknown bits.
func (c OutputConfig) Validate() error {
	if c&outputFieldsMask == 0 {
		return fmt.Errorf("ig1.OutputConfig: no output fields enabled")
	}
	if rest := c &^ (outputFieldsMask | Output16Bit | OutputRadians); rest != 0 {
		return fmt.Errorf("ig1.OutputConfig: unknown bits %#x", uint32(rest))
	}
	return nil
}

// ParseOutputConfig builds an output configuration from field and flag names.
func ParseOutputConfig(names []string) (OutputConfig, error) {
	var c OutputConfig

next:
	for _, name := range names {
		for _, f := range imuFields {
			if strings.EqualFold(f.name, name) {
				c |= f.bit
				continue next
			}
		}
		for _, f := range flagNames {
			if strings.EqualFold(f.name, name) {
				c |= f.bit
				continue next
			}
		}
		return 0, fmt.Errorf("ig1.OutputConfig: unknown output '%s'", name)
	}

	return c, nil
}

// UnmarshalYAML decodes a list of output names.
func (c *OutputConfig) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return err
	}

	parsed, err := ParseOutputConfig(names)
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}

// MarshalYAML encodes c as a list of output names.
func (c OutputConfig) MarshalYAML() (any, error) {
	return c.Names(), nil
}

// DecodeImu decodes an IMU data packet transmitted with output configuration c.
// Packets longer than expected are accepted and the excess is ignored.
func DecodeImu(data []byte, c OutputConfig) (zen.ImuData, error) {
	var d zen.ImuData

	r := packetReader{data: data}
	d.FrameCount = r.uint32()
	d.Timestamp = float64(d.FrameCount) * TimestampResolution

	values := make([]float32, 4)
	for _, f := range imuFields {
		if c&f.bit == 0 {
			continue
		}

		v := values[:f.count]
		for i := range v {
			v[i] = decodeValue(&r, f, c)
		}
		f.set(&d, v)
	}

	if r.err != nil {
		return zen.ImuData{}, fmt.Errorf("decoding imu data (%d bytes, want %d): %w", len(data), c.PacketSize(), r.err)
	}

	if c&OutputQuaternion != 0 {
		d.RotationM = zen.RotationFromQuaternion(d.Q)
	}

	return d, nil
}

func decodeValue(r *packetReader, f imuField, c OutputConfig) float32 {
	radians := c&OutputRadians != 0 && f.radScale != 0

	var v float64
	switch {
	case c&Output16Bit == 0:
		v = float64(r.float32())
	case radians:
		v = float64(r.int16()) / f.radScale
	default:
		v = float64(r.int16()) / f.scale
	}

	if radians {
		v *= 180 / math.Pi
	}
	return float32(v)
}

// EncodeImu encodes d as an IMU data packet with output configuration c.
// Angular values of d are in degrees and converted when c requests radians.
func EncodeImu(d zen.ImuData, c OutputConfig) []byte {
	buf := make([]byte, 0, c.PacketSize())
	buf = binary.LittleEndian.AppendUint32(buf, d.FrameCount)

	for _, f := range imuFields {
		if c&f.bit == 0 {
			continue
		}

		radians := c&OutputRadians != 0 && f.radScale != 0
		for _, value := range f.get(&d) {
			v := float64(value)
			if radians {
				v *= math.Pi / 180
			}

			switch {
			case c&Output16Bit == 0:
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			case radians:
				buf = binary.LittleEndian.AppendUint16(buf, uint16(toInt16(v*f.radScale)))
			default:
				buf = binary.LittleEndian.AppendUint16(buf, uint16(toInt16(v*f.scale)))
			}
		}
	}

	return buf
}

func toInt16(v float64) int16 {
	v = math.Round(v)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
}
