package lpbus

import (
	"encoding/binary"
	"fmt"
)

type lpState uint8

const (
	lpStart lpState = iota
	lpAddress1
	lpAddress2
	lpFunction1
	lpFunction2
	lpLength1
	lpLength2
	lpData
	lpCheck1
	lpCheck2
	lpEnd1
	lpEnd2
	lpFinished
)

// LPParser parses binary LP-bus frames:
//
//	':' | address u16 | function u16 | length u16 | data | checksum u16 | '\r' '\n'
//
// All integers are little-endian. The checksum is the 16-bit sum of the
// address, function and length bytes and the data.
type LPParser struct {
	state    lpState
	address  uint16
	function uint16
	length   uint16
	checksum uint16
	sum      uint16
	buf      []byte
	lease    lease
}

// NewLPParser returns an LP-bus parser.
func NewLPParser() *LPParser {
	return &LPParser{buf: make([]byte, 0, 256)}
}

func (p *LPParser) Parse(data []byte) (int, error) {
	if p.state == lpFinished {
		return 0, ErrFinished
	}

	for i, b := range data {
		switch p.state {
		case lpStart:
			if b != startByte {
				return i + 1, ErrExpectedStart
			}
			p.state = lpAddress1

		case lpAddress1:
			p.address = uint16(b)
			p.sum += uint16(b)
			p.state = lpAddress2

		case lpAddress2:
			p.address |= uint16(b) << 8
			p.sum += uint16(b)
			p.state = lpFunction1

		case lpFunction1:
			p.function = uint16(b)
			p.sum += uint16(b)
			p.state = lpFunction2

		case lpFunction2:
			p.function |= uint16(b) << 8
			p.sum += uint16(b)
			p.state = lpLength1

		case lpLength1:
			p.length = uint16(b)
			p.sum += uint16(b)
			p.state = lpLength2

		case lpLength2:
			p.length |= uint16(b) << 8
			p.sum += uint16(b)
			if p.length > MaxDataLength {
				return i + 1, ErrFrameTooLarge
			}
			if p.length == 0 {
				p.state = lpCheck1
			} else {
				p.state = lpData
			}

		case lpData:
			p.buf = append(p.buf, b)
			p.sum += uint16(b)
			if len(p.buf) == int(p.length) {
				p.state = lpCheck1
			}

		case lpCheck1:
			p.checksum = uint16(b)
			p.state = lpCheck2

		case lpCheck2:
			p.checksum |= uint16(b) << 8
			if p.checksum != p.sum {
				return i + 1, ErrChecksumInvalid
			}
			p.state = lpEnd1

		case lpEnd1:
			if b != endByte1 {
				return consumedOnError(i, b), ErrExpectedEnd
			}
			p.state = lpEnd2

		case lpEnd2:
			if b != endByte2 {
				return consumedOnError(i, b), ErrExpectedEnd
			}
			p.state = lpFinished
			return i + 1, nil
		}
	}

	return len(data), nil
}

// consumedOnError leaves a start byte unconsumed so that it can open the next
// frame.
func consumedOnError(i int, b byte) int {
	if b == startByte {
		return i
	}
	return i + 1
}

func (p *LPParser) Finished() bool {
	return p.state == lpFinished
}

func (p *LPParser) Frame() Frame {
	return Frame{
		Address:  p.address,
		Function: p.function,
		data:     p.buf,
		owner:    &p.lease,
		gen:      p.lease.gen.Load(),
	}
}

func (p *LPParser) Reset() {
	p.lease.gen.Add(1)

	p.state = lpStart
	p.address, p.function, p.length = 0, 0, 0
	p.checksum, p.sum = 0, 0
	p.buf = p.buf[:0]
}

// LPFactory encodes binary LP-bus frames.
type LPFactory struct{}

func (LPFactory) MakeFrame(address, function uint16, data []byte) ([]byte, error) {
	if len(data) > MaxDataLength {
		return nil, fmt.Errorf("lpbus: making frame: %w", ErrFrameTooLarge)
	}

	frame := make([]byte, 0, len(data)+11)
	frame = append(frame, startByte)
	frame = binary.LittleEndian.AppendUint16(frame, address)
	frame = binary.LittleEndian.AppendUint16(frame, function)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = append(frame, data...)

	var sum uint16
	for _, b := range frame[1:] {
		sum += uint16(b)
	}
	frame = binary.LittleEndian.AppendUint16(frame, sum)
	frame = append(frame, endByte1, endByte2)

	return frame, nil
}
