package lpbus

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

type asciiState uint8

const (
	asciiStart asciiState = iota
	asciiAddress
	asciiFunction
	asciiLength
	asciiData
	asciiCheck
	asciiEnd1
	asciiEnd2
	asciiFinished
)

// ASCIIParser parses Modbus ASCII frames:
//
//	':' | address | function | length | data | LRC | '\r' '\n'
//
// Every byte between the start and end markers is sent as two hexadecimal
// characters. The LRC is the two's complement of the byte sum of address,
// function, length and data.
type ASCIIParser struct {
	state    asciiState
	high     byte // first nibble of the byte being decoded
	halfByte bool
	address  uint8
	function uint8
	length   uint8
	lrc      uint8
	buf      []byte
	lease    lease
}

// NewASCIIParser returns a Modbus ASCII parser.
func NewASCIIParser() *ASCIIParser {
	return &ASCIIParser{buf: make([]byte, 0, 256)}
}

func (p *ASCIIParser) Parse(data []byte) (int, error) {
	if p.state == asciiFinished {
		return 0, ErrFinished
	}

	for i, c := range data {
		switch p.state {
		case asciiStart:
			if c != startByte {
				return i + 1, ErrExpectedStart
			}
			p.state = asciiAddress
			continue

		case asciiEnd1:
			if c != endByte1 {
				return consumedOnError(i, c), ErrExpectedEnd
			}
			p.state = asciiEnd2
			continue

		case asciiEnd2:
			if c != endByte2 {
				return consumedOnError(i, c), ErrExpectedEnd
			}
			p.state = asciiFinished
			return i + 1, nil
		}

		nibble, ok := fromHex(c)
		if !ok {
			return consumedOnError(i, c), ErrUnexpectedCharacter
		}
		if !p.halfByte {
			p.high = nibble
			p.halfByte = true
			continue
		}
		p.halfByte = false
		b := p.high<<4 | nibble

		switch p.state {
		case asciiAddress:
			p.address = b
			p.lrc += b
			p.state = asciiFunction

		case asciiFunction:
			p.function = b
			p.lrc += b
			p.state = asciiLength

		case asciiLength:
			p.length = b
			p.lrc += b
			if b == 0 {
				p.state = asciiCheck
			} else {
				p.state = asciiData
			}

		case asciiData:
			p.buf = append(p.buf, b)
			p.lrc += b
			if len(p.buf) == int(p.length) {
				p.state = asciiCheck
			}

		case asciiCheck:
			if p.lrc+b != 0 {
				return i + 1, ErrChecksumInvalid
			}
			p.state = asciiEnd1
		}
	}

	return len(data), nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

func (p *ASCIIParser) Finished() bool {
	return p.state == asciiFinished
}

func (p *ASCIIParser) Frame() Frame {
	return Frame{
		Address:  uint16(p.address),
		Function: uint16(p.function),
		data:     p.buf,
		owner:    &p.lease,
		gen:      p.lease.gen.Load(),
	}
}

func (p *ASCIIParser) Reset() {
	p.lease.gen.Add(1)

	p.state = asciiStart
	p.high, p.halfByte = 0, false
	p.address, p.function, p.length, p.lrc = 0, 0, 0, 0
	p.buf = p.buf[:0]
}

// ASCIIFactory encodes Modbus ASCII frames. Address, function and length are
// limited to a single byte.
type ASCIIFactory struct{}

func (ASCIIFactory) MakeFrame(address, function uint16, data []byte) ([]byte, error) {
	if address > math.MaxUint8 || function > math.MaxUint8 {
		return nil, fmt.Errorf("lpbus: making ascii frame: address %d or function %d exceeds one byte", address, function)
	}
	if len(data) > math.MaxUint8 {
		return nil, fmt.Errorf("lpbus: making ascii frame: %w", ErrFrameTooLarge)
	}

	raw := make([]byte, 0, len(data)+4)
	raw = append(raw, byte(address), byte(function), byte(len(data)))
	raw = append(raw, data...)

	var lrc byte
	for _, b := range raw {
		lrc += b
	}
	raw = append(raw, -lrc)

	frame := make([]byte, 0, len(raw)*2+3)
	frame = append(frame, startByte)
	frame = append(frame, strings.ToUpper(hex.EncodeToString(raw))...)
	frame = append(frame, endByte1, endByte2)

	return frame, nil
}
