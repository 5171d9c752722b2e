package ig1

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// GnssPacketSize is the size of a GNSS data packet:
//
//	timestamp u32 | latitude f64 | longitude f64 |
//	horizontal accuracy, vertical accuracy, height, heading, heading accuracy,
//	velocity, velocity accuracy f32 |
//	fix type, carrier phase solution, satellites used u8 |
//	year u16 | month, day, hour, minute, second u8 | nanosecond correction i32
const GnssPacketSize = 62

// DecodeGnss decodes a GNSS data packet.
func DecodeGnss(data []byte) (zen.GnssData, error) {
	var d zen.GnssData

	r := packetReader{data: data}
	d.Timestamp = float64(r.uint32()) * TimestampResolution
	d.Latitude = r.float64()
	d.Longitude = r.float64()
	d.HorizontalAccuracy = float64(r.float32())
	d.VerticalAccuracy = float64(r.float32())
	d.Height = float64(r.float32())
	d.Heading = float64(r.float32())
	d.HeadingAccuracy = float64(r.float32())
	d.Velocity = float64(r.float32())
	d.VelocityAccuracy = float64(r.float32())
	d.FixType = zen.GnssFixType(r.uint8())
	d.CarrierPhaseSolution = zen.CarrierPhaseSolution(r.uint8())
	d.NumberSatellitesUsed = r.uint8()
	d.Year = r.uint16()
	d.Month = r.uint8()
	d.Day = r.uint8()
	d.Hour = r.uint8()
	d.Minute = r.uint8()
	d.Second = r.uint8()
	d.NanoSecondCorrection = r.int32()

	if r.err != nil {
		return zen.GnssData{}, fmt.Errorf("decoding gnss data (%d bytes, want %d): %w", len(data), GnssPacketSize, r.err)
	}
	return d, nil
}

// EncodeGnss encodes d as a GNSS data packet.
func EncodeGnss(d zen.GnssData) []byte {
	le := binary.LittleEndian
	f32 := func(b []byte, v float64) []byte { return le.AppendUint32(b, math.Float32bits(float32(v))) }

	buf := make([]byte, 0, GnssPacketSize)
	buf = le.AppendUint32(buf, uint32(math.Round(d.Timestamp/TimestampResolution)))
	buf = le.AppendUint64(buf, math.Float64bits(d.Latitude))
	buf = le.AppendUint64(buf, math.Float64bits(d.Longitude))
	buf = f32(buf, d.HorizontalAccuracy)
	buf = f32(buf, d.VerticalAccuracy)
	buf = f32(buf, d.Height)
	buf = f32(buf, d.Heading)
	buf = f32(buf, d.HeadingAccuracy)
	buf = f32(buf, d.Velocity)
	buf = f32(buf, d.VelocityAccuracy)
	buf = append(buf, byte(d.FixType), byte(d.CarrierPhaseSolution), d.NumberSatellitesUsed)
	buf = le.AppendUint16(buf, d.Year)
	buf = append(buf, d.Month, d.Day, d.Hour, d.Minute, d.Second)
	buf = le.AppendUint32(buf, uint32(d.NanoSecondCorrection))

	return buf
}
