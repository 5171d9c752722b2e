package sensor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// ErrDuplicateFrame is returned when a sample with the same frame counter is
// already buffered.
var ErrDuplicateFrame = errors.New("sensor: duplicate frame")

// node represents an internal linked list node for the sample buffer.
type node struct {
	sample zen.ImuData
	next   *node
}

// SampleBuffer implements a thread-safe buffer for storing IMU samples in
// frame counter order while handling counter rollovers. The frame counter is
// a 32-bit sensor tick count, so a sample with a small counter received after
// one close to the maximum belongs after it.
type SampleBuffer struct {
	capacity   int // Maximum number of samples to store
	flushCount int // Number of samples to remove when buffer reaches capacity

	mu   sync.Mutex
	head *node
	tail *node
	size int
}

// NewSampleBuffer creates a new sample buffer. The buffer will store up to
// capacity samples and remove flushCount samples when full.
//
// Returns an error if parameters are invalid.
func NewSampleBuffer(capacity, flushCount int) (*SampleBuffer, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid buffer parameters: bufferCap=%d, toFlush=%d", capacity, flushCount)
	}
	return &SampleBuffer{
		capacity:   capacity,
		flushCount: flushCount,
	}, nil
}

// Insert adds a sample to the buffer in frame order.
func (sb *SampleBuffer) Insert(sample zen.ImuData) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	n := &node{sample: sample}

	if sb.head == nil {
		sb.head, sb.tail = n, n
		sb.size++
		return nil
	}

	// Fast path: samples usually arrive in order
	if c := compareFrames(sample.FrameCount, sb.tail.sample.FrameCount); c >= 0 {
		if c == 0 {
			return fmt.Errorf("%w: %d", ErrDuplicateFrame, sample.FrameCount)
		}
		sb.tail.next = n
		sb.tail = n
		sb.size++
		return nil
	}

	// Special case: if sample belongs before head
	if c := compareFrames(sample.FrameCount, sb.head.sample.FrameCount); c <= 0 {
		if c == 0 {
			return fmt.Errorf("%w: %d", ErrDuplicateFrame, sample.FrameCount)
		}
		n.next = sb.head
		sb.head = n
		sb.size++
		return nil
	}

	// Find insertion point
	current := sb.head
	for current.next != nil {
		c := compareFrames(current.next.sample.FrameCount, sample.FrameCount)
		if c == 0 {
			return fmt.Errorf("%w: %d", ErrDuplicateFrame, sample.FrameCount)
		}
		if c > 0 {
			break
		}
		current = current.next
	}

	n.next = current.next
	current.next = n
	sb.size++
	return nil
}

// IsFull returns true if the buffer has reached its capacity.
func (sb *SampleBuffer) IsFull() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.size >= sb.capacity
}

// Flush removes and returns the oldest samples from the buffer.
// Returns nil if the buffer is empty.
func (sb *SampleBuffer) Flush() []zen.ImuData {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.head == nil {
		return nil
	}

	count := sb.flushCount
	if sb.size > sb.capacity {
		count += sb.size - sb.capacity
	}

	return sb.take(min(count, sb.size))
}

// DrainAll removes and returns all samples from the buffer.
// Returns nil if the buffer is empty.
func (sb *SampleBuffer) DrainAll() []zen.ImuData {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.head == nil {
		return nil
	}
	return sb.take(sb.size)
}

// take removes count samples from the head. Called with sb.mu held.
func (sb *SampleBuffer) take(count int) []zen.ImuData {
	results := make([]zen.ImuData, 0, count)
	current := sb.head
	for i := 0; i < count && current != nil; i++ {
		results = append(results, current.sample)
		current = current.next
	}

	sb.head = current
	if current == nil {
		sb.tail = nil
	}
	sb.size -= len(results)
	return results
}

// Size returns the current number of samples in the buffer.
func (sb *SampleBuffer) Size() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.size
}

// Clear removes all samples from the buffer.
func (sb *SampleBuffer) Clear() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.head, sb.tail = nil, nil
	sb.size = 0
}

// compareFrames orders frame counters modulo 2^32.
// Returns:
//
//	1 if 'a' belongs after 'b'
//	-1 if 'a' belongs before 'b'
//	0 if they are the same frame
func compareFrames(a, b uint32) int {
	d := int32(a - b)
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}
