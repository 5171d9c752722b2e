// Package sim implements an IO system of simulated IG1 sensors. Each opened
// sensor runs in-process behind a pair of pipes and speaks LP-bus exactly
// like the hardware: it streams data frames and answers commands.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// IoType is the IO type name of the simulated system.
const IoType = "sim"

const defaultBaudRate = 921600

type System struct {
	config *Config
	logger *slog.Logger

	mu      sync.Mutex
	devices map[string]*device
}

func WithLogger(logger *slog.Logger) func(*System) {
	return func(s *System) {
		s.logger = logger
	}
}

// New creates the simulated IO system.
func New(config *Config, options ...func(*System)) (*System, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, iosys.NewConfigError(err.Error())
	}

	s := &System{
		config:  config,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		devices: make(map[string]*device),
	}
	for _, option := range options {
		option(s)
	}

	return s, nil
}

func (s *System) Type() string {
	return IoType
}

func (s *System) DefaultBaudRate() uint32 {
	return defaultBaudRate
}

func (s *System) List(ctx context.Context) ([]zen.SensorDesc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	descs := make([]zen.SensorDesc, 0, len(s.config.Sensors))
	for _, sc := range s.config.Sensors {
		sc = sc.withDefaults()
		descs = append(descs, zen.SensorDesc{
			Name:         sc.Name,
			SerialNumber: sc.SerialNumber,
			IoType:       IoType,
			Identifier:   sc.Name,
			BaudRate:     defaultBaudRate,
		})
	}
	return descs, nil
}

// Open powers up the simulated sensor named by desc.Identifier (or
// desc.Name). A sensor can be open only once at a time.
func (s *System) Open(ctx context.Context, desc zen.SensorDesc) (iosys.Interface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := desc.Identifier
	if id == "" {
		id = desc.Name
	}

	var sc *SensorConfig
	for i := range s.config.Sensors {
		if s.config.Sensors[i].Name == id {
			c := s.config.Sensors[i].withDefaults()
			sc = &c
			break
		}
	}
	if sc == nil {
		return nil, iosys.NewRuntimeError(fmt.Sprintf("sim: unknown sensor '%s'", id), zen.ErrorUnknownDeviceID, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; ok {
		return nil, iosys.NewRuntimeError(fmt.Sprintf("sim: sensor '%s' already open", id), zen.ErrorIoBusy, nil)
	}

	desc.Identifier = id
	desc.IoType = IoType
	if desc.BaudRate == 0 {
		desc.BaudRate = defaultBaudRate
	}

	d, err := newDevice(*sc, desc, s.logger.With(slog.String("sensor", id)), func() { s.forget(id) })
	if err != nil {
		return nil, iosys.NewRuntimeError("sim: failed to power up sensor", zen.ErrorIoInitFailed, err)
	}
	s.devices[id] = d
	d.start()

	return d, nil
}

// Unplug simulates pulling the cable of an open sensor: pending and further
// reads fail with an IO error.
func (s *System) Unplug(id string) error {
	s.mu.Lock()
	d, ok := s.devices[id]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("sim: sensor '%s' is not open", id)
	}
	d.unplug()
	return nil
}

func (s *System) forget(id string) {
	s.mu.Lock()
	delete(s.devices, id)
	s.mu.Unlock()
}
