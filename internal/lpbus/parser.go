package lpbus

import (
	"errors"
	"fmt"
)

const (
	startByte = ':'
	endByte1  = '\r'
	endByte2  = '\n'

	// MaxDataLength is the largest payload accepted by the parsers.
	MaxDataLength = 2048
)

// ParseError is a framing error reported by a Parser.
type ParseError uint8

const (
	ErrExpectedStart ParseError = iota + 1
	ErrChecksumInvalid
	ErrUnexpectedCharacter
	ErrExpectedEnd
	ErrFinished
	ErrFrameTooLarge
)

var parseErrorNames = map[ParseError]string{
	ErrExpectedStart:       "expected start byte",
	ErrChecksumInvalid:     "invalid checksum",
	ErrUnexpectedCharacter: "unexpected character",
	ErrExpectedEnd:         "expected end bytes",
	ErrFinished:            "frame already finished",
	ErrFrameTooLarge:       "frame too large",
}

func (e ParseError) Error() string {
	if name, ok := parseErrorNames[e]; ok {
		return "lpbus: " + name
	}
	return fmt.Sprintf("lpbus: parse error %d", uint8(e))
}

// ErrUnsupportedFormat is returned for frame formats without a codec.
var ErrUnsupportedFormat = errors.New("lpbus: unsupported frame format")

// Format is a bus frame encoding.
type Format string

const (
	FormatLP    Format = "lp"
	FormatASCII Format = "ascii"
	FormatRTU   Format = "rtu"
)

// Parser decodes a byte stream into frames.
type Parser interface {
	// Parse consumes bytes of data until a frame is finished or data is
	// exhausted and returns the number of bytes consumed. On error the count
	// includes the offending byte unless it is a start byte that may open
	// the next frame. The parser must be reset after an error.
	Parse(data []byte) (int, error)

	// Finished reports whether a complete frame is available.
	Finished() bool

	// Frame returns the current frame. The frame data is borrowed and
	// becomes unreadable on the next Reset.
	Frame() Frame

	// Reset discards the current frame and starts a new one.
	Reset()
}

// Factory encodes frames.
type Factory interface {
	MakeFrame(address, function uint16, data []byte) ([]byte, error)
}

// NewParser returns a parser for format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatLP, "":
		return NewLPParser(), nil
	case FormatASCII:
		return NewASCIIParser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// NewFactory returns a frame factory for format.
func NewFactory(format Format) (Factory, error) {
	switch format {
	case FormatLP, "":
		return LPFactory{}, nil
	case FormatASCII:
		return ASCIIFactory{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Process feeds data through p and calls fn for every finished frame. On a
// parse error the parser is reset and parsing resumes after the offending
// byte, so a stream joined in the middle of a frame resyncs on the next start
// byte. The number of parse errors is returned. Process stops at the first
// error returned by fn.
//
// A frame that is still incomplete when data is exhausted stays in the
// parser and is continued by the next call.
func Process(p Parser, data []byte, fn func(Frame) error) (resyncs int, err error) {
	for len(data) > 0 {
		n, pErr := p.Parse(data)
		if pErr != nil {
			p.Reset()
			resyncs++
			data = data[n:]
			continue
		}
		data = data[n:]

		if !p.Finished() {
			continue
		}

		err = fn(p.Frame())
		p.Reset()
		if err != nil {
			return resyncs, err
		}
	}
	return resyncs, nil
}
