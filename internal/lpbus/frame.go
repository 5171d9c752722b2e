package lpbus

import (
	"fmt"
	"sync/atomic"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// lease tracks the generation of a parser's receive buffer. Every reset
// starts a new generation and invalidates frames borrowed from the previous one.
type lease struct {
	gen atomic.Uint64
}

// Frame is a single bus message. Frames returned by a Parser borrow the
// parser's receive buffer: their data stays readable until the parser is
// reset. Use Clone to keep a frame longer.
type Frame struct {
	Address  uint16
	Function uint16

	data  []byte
	owner *lease
	gen   uint64
}

// NewFrame returns a frame owning a copy of data.
func NewFrame(address, function uint16, data []byte) Frame {
	return Frame{Address: address, Function: function, data: append([]byte(nil), data...)}
}

// Data returns the frame payload. For a borrowed frame it fails with
// zen.ErrUseAfterRelease once the parser that produced it was reset.
func (f Frame) Data() ([]byte, error) {
	if f.owner != nil && f.owner.gen.Load() != f.gen {
		return nil, fmt.Errorf("lpbus: frame %d/%d data: %w", f.Address, f.Function, zen.ErrUseAfterRelease)
	}
	return f.data, nil
}

// Len returns the payload length.
func (f Frame) Len() int {
	return len(f.data)
}

// Borrowed reports whether the frame data belongs to a parser.
func (f Frame) Borrowed() bool {
	return f.owner != nil
}

// Clone returns a frame that owns a copy of the payload.
func (f Frame) Clone() (Frame, error) {
	data, err := f.Data()
	if err != nil {
		return Frame{}, err
	}
	return NewFrame(f.Address, f.Function, data), nil
}

func (f Frame) String() string {
	return fmt.Sprintf("frame(address=%d, function=%d, len=%d)", f.Address, f.Function, len(f.data))
}
