// Package ig1 implements the payload codecs and command set of LP-Research
// IG1 family sensors speaking LP-bus.
package ig1

import (
	"encoding/binary"
	"errors"
	"math"
)

// Function codes of the IG1 command set.
const (
	FunctionAck             uint16 = 0
	FunctionNack            uint16 = 1
	FunctionGotoCommandMode uint16 = 6
	FunctionGotoStreamMode  uint16 = 7
	FunctionImuData         uint16 = 9
	FunctionGetSensorModel  uint16 = 20
	FunctionGetSerialNumber uint16 = 22
	FunctionSetOutputConfig uint16 = 30
	FunctionGetOutputConfig uint16 = 31
	FunctionSetSamplingRate uint16 = 32
	FunctionGetSamplingRate uint16 = 33
	FunctionGnssData        uint16 = 93
)

// TimestampResolution is the duration of one sensor frame counter tick in seconds.
const TimestampResolution = 0.002

var (
	ErrShortPacket = errors.New("ig1: packet too short")
	ErrBadString   = errors.New("ig1: malformed string reply")
)

// DecodeUint32 decodes a single little-endian uint32 command reply.
func DecodeUint32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrShortPacket
	}
	return binary.LittleEndian.Uint32(data), nil
}

// EncodeUint32 encodes a single uint32 command argument.
func EncodeUint32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// DecodeString decodes a zero padded ASCII string reply.
func DecodeString(data []byte) (string, error) {
	for i, c := range data {
		if c == 0 {
			return string(data[:i]), nil
		}
		if c < 0x20 || c > 0x7e {
			return "", ErrBadString
		}
	}
	return string(data), nil
}

// packetReader reads little-endian values from a packet.
type packetReader struct {
	data []byte
	err  error
}

func (r *packetReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = ErrShortPacket
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *packetReader) uint8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *packetReader) uint16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *packetReader) int16() int16 {
	return int16(r.uint16())
}

func (r *packetReader) uint32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *packetReader) int32() int32 {
	return int32(r.uint32())
}

func (r *packetReader) float32() float32 {
	return math.Float32frombits(r.uint32())
}

func (r *packetReader) float64() float64 {
	if b := r.next(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}
