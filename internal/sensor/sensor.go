// Package sensor runs obtained sensors: it reads and parses the LP-bus
// stream of an IO interface, turns data frames into events and executes
// commands.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/lpbus"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5

	// DefaultCommandTimeout bounds the wait for a command reply
	DefaultCommandTimeout = 2 * time.Second

	// Address is the bus address commands are sent to
	Address uint16 = 1

	readBufferSize = 4096
)

// WithLogger sets the logger for the sensor
func WithLogger(logger *slog.Logger) func(s *Sensor) {
	return func(s *Sensor) {
		s.logger = logger
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(s *Sensor) {
	return func(s *Sensor) {
		s.parseErrorsThreshold = threshold
	}
}

// WithFormat sets the frame format the sensor speaks (default: lp)
func WithFormat(format lpbus.Format) func(s *Sensor) {
	return func(s *Sensor) {
		s.format = format
	}
}

// WithOutputConfig sets the IMU output configuration the sensor is known to
// stream with. It is updated by OutputConfig and SetOutputConfig.
func WithOutputConfig(output ig1.OutputConfig) func(s *Sensor) {
	return func(s *Sensor) {
		s.output.Store(uint32(output))
	}
}

// WithCommandTimeout sets how long commands wait for a reply
func WithCommandTimeout(timeout time.Duration) func(s *Sensor) {
	return func(s *Sensor) {
		s.commandTimeout = timeout
	}
}

// pendingCommand is a command waiting for its reply. onAck runs on the read
// loop before any later frame is decoded.
type pendingCommand struct {
	function uint16
	reply    chan lpbus.Frame
	onAck    func()
}

// Sensor is an obtained sensor. It owns its IO interface: Close closes it,
// after which every method fails with zen.ErrUseAfterRelease.
type Sensor struct {
	handle zen.SensorHandle
	iface  iosys.Interface

	format  lpbus.Format
	factory lpbus.Factory
	parser  lpbus.Parser
	output  atomic.Uint32

	runMu     sync.Mutex // orders Start against Close
	isRunning atomic.Bool
	isClosed  atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	cmdMu          sync.Mutex // one command in flight
	pendingMu      sync.Mutex
	pending        *pendingCommand
	commandTimeout time.Duration

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// New creates a sensor speaking over iface with a discard logger
func New(handle zen.SensorHandle, iface iosys.Interface, options ...func(s *Sensor)) (*Sensor, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Sensor{
		handle:               handle,
		iface:                iface,
		format:               lpbus.FormatLP,
		commandTimeout:       DefaultCommandTimeout,
		parseErrorsThreshold: ParseErrorsThreshold,
		logger:               logger,
	}
	s.output.Store(uint32(ig1.DefaultOutputConfig))

	for _, option := range options {
		option(&s)
	}

	if s.parseErrorsThreshold == 0 {
		return nil, NewConfigError("sensor: parse errors threshold must be positive")
	}
	if s.commandTimeout <= 0 {
		return nil, NewConfigError("sensor: command timeout must be positive")
	}

	var err error
	if s.parser, err = lpbus.NewParser(s.format); err != nil {
		return nil, NewConfigError(err.Error())
	}
	if s.factory, err = lpbus.NewFactory(s.format); err != nil {
		return nil, NewConfigError(err.Error())
	}

	s.logger = s.logger.With(
		slog.Uint64("sensor", uint64(handle)),
		slog.String("desc", iface.Desc().String()),
	)

	return &s, nil
}

func (s *Sensor) Handle() zen.SensorHandle {
	return s.handle
}

func (s *Sensor) Desc() zen.SensorDesc {
	return s.iface.Desc()
}

// Components returns the components of the sensor.
func (s *Sensor) Components() ([]Component, error) {
	if s.isClosed.Load() {
		return nil, zen.ErrUseAfterRelease
	}
	return append([]Component(nil), components...), nil
}

// IsRunning returns true while the read loop runs
func (s *Sensor) IsRunning() bool {
	return s.isRunning.Load()
}

// Start runs the read loop, sending events to the events channel. The returned
// channel receives the error that stopped the loop, if any, and is closed when
// the loop ends. A disconnected IO interface is reported with a
// SensorDisconnected event before the loop ends.
func (s *Sensor) Start(ctx context.Context, events chan<- zen.Event) (<-chan error, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.isClosed.Load() {
		return nil, zen.ErrUseAfterRelease
	}
	if !s.isRunning.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	if s.cancel != nil {
		s.cancel() // context of a previous run
	}
	ctx, s.cancel = context.WithCancel(ctx)
	stopped := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(stopped)

		s.logger.Info("starting events collection...")

		err := s.readLoop(ctx, events)
		if err != nil {
			s.logger.Error(err.Error())
		}

		s.isRunning.Store(false)
		s.failPending()
		s.logger.Info("events collection stopped")

		if err != nil {
			stopped <- err
		}
	}()

	return stopped, nil
}

// Close stops the read loop and closes the IO interface. It is safe to call
// more than once.
func (s *Sensor) Close() error {
	s.runMu.Lock()
	if !s.isClosed.CompareAndSwap(false, true) {
		s.runMu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := s.iface.Close()
	s.wg.Wait()

	if err != nil {
		return fmt.Errorf("sensor %d: close: %w", s.handle, err)
	}
	return nil
}

func (s *Sensor) readLoop(ctx context.Context, events chan<- zen.Event) error {
	var parseErrors uint8

	fail := func() error {
		parseErrors++
		if parseErrors >= s.parseErrorsThreshold {
			return ErrTooManyParseErrors
		}
		return nil
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.iface.Read(buf)
		if ctx.Err() != nil {
			return nil
		}

		if n > 0 {
			var frames int
			resyncs, pErr := lpbus.Process(s.parser, buf[:n], func(f lpbus.Frame) error {
				ok, err := s.dispatch(ctx, f, events)
				if err != nil {
					return err
				}
				if ok {
					frames++
					parseErrors = 0 // reset counter
					return nil
				}
				return fail()
			})
			if pErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return pErr
			}

			// resync noise counts once per chunk without a good frame
			if resyncs > 0 && frames == 0 {
				s.logger.Warn("error parsing frames", slog.Int("resyncs", resyncs))
				if err := fail(); err != nil {
					return err
				}
			}
		}

		if err != nil {
			return s.disconnected(ctx, err, events)
		}
	}
}

// dispatch routes a frame to its component or to the pending command. It
// reports false for frames that could not be decoded.
func (s *Sensor) dispatch(ctx context.Context, f lpbus.Frame, events chan<- zen.Event) (bool, error) {
	data, err := f.Data()
	if err != nil {
		return false, err
	}

	c, ok := componentFor(f.Function)
	if !ok {
		s.deliverReply(f)
		return true, nil
	}

	ev, err := c.decode(s.handle, data, ig1.OutputConfig(s.output.Load()))
	if err != nil {
		s.logger.Warn(fmt.Sprintf("error decoding %s data: %s", c.name, err.Error()))
		return false, nil
	}

	select {
	case events <- ev:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Sensor) deliverReply(f lpbus.Frame) {
	s.pendingMu.Lock()
	p := s.pending
	if p != nil && (f.Function == p.function || f.Function == ig1.FunctionAck || f.Function == ig1.FunctionNack) {
		s.pending = nil
	} else {
		p = nil
	}
	s.pendingMu.Unlock()

	if p == nil {
		s.logger.Debug("unsolicited frame", slog.String("frame", f.String()))
		return
	}

	owned, err := f.Clone()
	if err != nil {
		return
	}
	if owned.Function == ig1.FunctionAck && p.onAck != nil {
		p.onAck()
	}
	p.reply <- owned
}

func (s *Sensor) failPending() {
	s.pendingMu.Lock()
	p := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	if p != nil {
		close(p.reply)
	}
}

func (s *Sensor) disconnected(ctx context.Context, err error, events chan<- zen.Event) error {
	code := zen.ErrorIoReadFailed
	var rerr *iosys.RuntimeError
	if errors.As(err, &rerr) {
		code = rerr.Code()
	}

	ev := zen.NewEvent(s.handle, 0, zen.SensorDisconnected{Error: code})
	select {
	case events <- ev:
	case <-ctx.Done():
	}

	return fmt.Errorf("sensor %d: disconnected: %w", s.handle, err)
}
