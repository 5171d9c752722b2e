// Package client is the entry point of the sensor library. A Client
// discovers sensors on the registered IO systems, obtains them and merges
// their events into a single queue.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// DefaultQueueSize is the capacity of the event queue
const DefaultQueueSize = 1024

func WithLogger(logger *slog.Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithQueueSize sets the capacity of the event queue. Events published to a
// full queue are dropped.
func WithQueueSize(size int) func(c *Client) {
	return func(c *Client) {
		c.queueSize = size
	}
}

type Client struct {
	registry *iosys.Registry

	queueSize int
	queue     chan zen.Event
	dropped   atomic.Uint64

	isListing atomic.Bool

	mu         sync.Mutex
	sensors    map[zen.SensorHandle]*ObtainedSensor
	opening    map[string]struct{} // ioType and identifier of sensors being obtained
	nextHandle zen.SensorHandle
	isClosed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// New creates a client over the IO systems of registry
func New(registry *iosys.Registry, options ...func(c *Client)) (*Client, error) {
	if registry == nil {
		return nil, fmt.Errorf("client: registry is required")
	}

	c := Client{
		registry:   registry,
		queueSize:  DefaultQueueSize,
		sensors:    make(map[zen.SensorHandle]*ObtainedSensor),
		opening:    make(map[string]struct{}),
		nextHandle: 1,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&c)
	}

	if c.queueSize <= 0 {
		return nil, fmt.Errorf("client: queue size must be positive, %d given", c.queueSize)
	}

	c.queue = make(chan zen.Event, c.queueSize)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	return &c, nil
}

// publish enqueues ev without blocking. Events that do not fit are dropped.
func (c *Client) publish(ev zen.Event) {
	select {
	case c.queue <- ev:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("event queue is full, dropping events", slog.Uint64("dropped", n))
		}
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// PollNextEvent returns the next queued event, if any, without blocking.
func (c *Client) PollNextEvent() (zen.Event, bool) {
	select {
	case ev, ok := <-c.queue:
		return ev, ok
	default:
		return zen.Event{}, false
	}
}

// WaitForNextEvent blocks until an event is queued. Once the client is closed
// and the queue is drained it fails with zen.ErrUseAfterRelease.
func (c *Client) WaitForNextEvent(ctx context.Context) (zen.Event, error) {
	select {
	case ev, ok := <-c.queue:
		if !ok {
			return zen.Event{}, zen.ErrUseAfterRelease
		}
		return ev, nil
	case <-ctx.Done():
		return zen.Event{}, ctx.Err()
	}
}

// Events returns the event queue. It is closed by Close.
func (c *Client) Events() <-chan zen.Event {
	return c.queue
}

// goTracked runs fn on a goroutine Close waits for. It fails once the client
// is closed.
func (c *Client) goTracked(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return zen.ErrUseAfterRelease
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return nil
}

// Close releases every obtained sensor, stops listing and closes the event
// queue. Events still queued can be read after Close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil
	}
	c.isClosed = true

	obtained := make([]*ObtainedSensor, 0, len(c.sensors))
	for _, o := range c.sensors {
		obtained = append(obtained, o)
	}
	clear(c.sensors)
	c.mu.Unlock()

	c.cancel()

	var errs []error
	for _, o := range obtained {
		if err := o.close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.wg.Wait()
	close(c.queue)

	c.logger.Info("client closed", slog.Int("released", len(obtained)), slog.Uint64("dropped", c.Dropped()))

	return errors.Join(errs...)
}
