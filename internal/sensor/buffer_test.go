package sensor

import (
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

func frames(samples []zen.ImuData) []uint32 {
	out := make([]uint32, len(samples))
	for i, s := range samples {
		out[i] = s.FrameCount
	}
	return out
}

func TestSampleBuffer_Ordering(t *testing.T) {
	sb, err := NewSampleBuffer(10, 5)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	inserted := []uint32{
		math.MaxUint32 - 4,
		math.MaxUint32 - 2,
		math.MaxUint32 - 3, // late
		1,                  // after rollover
		math.MaxUint32,     // late, before rollover
		3,
		2,
	}

	for i, fc := range inserted {
		if err := sb.Insert(zen.ImuData{FrameCount: fc}); err != nil {
			t.Errorf("Failed to insert sample %d: %v", i, err)
		}
	}

	if size := sb.Size(); size != len(inserted) {
		t.Errorf("Expected buffer size %d, got %d", len(inserted), size)
	}

	expected := []uint32{
		math.MaxUint32 - 4,
		math.MaxUint32 - 3,
		math.MaxUint32 - 2,
		math.MaxUint32,
		1,
		2,
		3,
	}

	results := frames(sb.DrainAll())
	if len(results) != len(expected) {
		t.Fatalf("Expected %d results, got %d", len(expected), len(results))
	}
	for i, fc := range expected {
		if results[i] != fc {
			t.Errorf("Result %d: expected frame %d, got %d", i, fc, results[i])
		}
	}
}

func TestSampleBuffer_FlushBehavior(t *testing.T) {
	sb, err := NewSampleBuffer(3, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	for i, fc := range []uint32{20, 10, 30} {
		if err := sb.Insert(zen.ImuData{FrameCount: fc}); err != nil {
			t.Errorf("Failed to insert sample %d: %v", i, err)
		}
	}

	if !sb.IsFull() {
		t.Error("Buffer should be full")
	}

	flushed := frames(sb.Flush())
	if len(flushed) != 2 || flushed[0] != 10 || flushed[1] != 20 {
		t.Errorf("Expected flushed frames [10 20], got %v", flushed)
	}
	if size := sb.Size(); size != 1 {
		t.Errorf("Expected remaining size 1, got %d", size)
	}

	// tail must survive a partial flush
	if err := sb.Insert(zen.ImuData{FrameCount: 40}); err != nil {
		t.Fatalf("Failed to insert sample: %v", err)
	}
	if rest := frames(sb.DrainAll()); len(rest) != 2 || rest[0] != 30 || rest[1] != 40 {
		t.Errorf("Expected remaining frames [30 40], got %v", rest)
	}
}

func TestSampleBuffer_EdgeCases(t *testing.T) {
	sb, err := NewSampleBuffer(5, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if sb.Flush() != nil {
		t.Error("Flush on empty buffer should return nil")
	}
	if sb.DrainAll() != nil {
		t.Error("DrainAll on empty buffer should return nil")
	}
	if sb.IsFull() {
		t.Error("Empty buffer should not be full")
	}

	for _, fc := range []uint32{5, 7, 9} {
		_ = sb.Insert(zen.ImuData{FrameCount: fc})
	}
	for _, fc := range []uint32{5, 7, 9} {
		if err := sb.Insert(zen.ImuData{FrameCount: fc}); !errors.Is(err, ErrDuplicateFrame) {
			t.Errorf("Insert(%d) error = %v, want ErrDuplicateFrame", fc, err)
		}
	}

	sb.Clear()
	if sb.Size() != 0 {
		t.Error("Cleared buffer should have size 0")
	}

	testCases := []struct {
		name     string
		capacity int
		flush    int
	}{
		{"invalid capacity", 0, 1},
		{"invalid flush count", 5, 6},
		{"zero flush count", 5, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSampleBuffer(tc.capacity, tc.flush); err == nil {
				t.Error("Expected error for invalid parameters")
			}
		})
	}
}
