// Package serial implements the serial port IO system. Ports are
// discovered with device enumeration where the platform offers it and with
// path globs otherwise.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// IoType is the IO type name of the serial system.
const IoType = "serial"

// opener opens a configured port. Replaced in tests.
type opener func(*serial.Config) (io.ReadWriteCloser, error)

func openPort(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

type System struct {
	config *Config
	logger *slog.Logger
	open   opener
}

func WithLogger(logger *slog.Logger) func(*System) {
	return func(s *System) {
		s.logger = logger
	}
}

// New creates the serial IO system.
func New(config *Config, options ...func(*System)) (*System, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, iosys.NewConfigError(err.Error())
	}

	s := &System{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		open:   openPort,
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
	return s.config.defaultBaudRate()
}

// List enumerates the serial ports. When probing is enabled only ports that
// produce data within the probe timeout are returned.
func (s *System) List(ctx context.Context) ([]zen.SensorDesc, error) {
	ports, err := enumeratePorts()
	if err != nil {
		s.logger.Debug("device enumeration unavailable, falling back to path globs", slog.Any("error", err))
		ports, err = globPorts(s.patterns())
	}
	if err != nil {
		return nil, iosys.NewRuntimeError("serial: failed to list ports", zen.ErrorDeviceListingFailed, err)
	}

	descs := make([]zen.SensorDesc, 0, len(ports))
	for _, p := range ports {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if s.config.Probe && !s.probe(p.path) {
			s.logger.Debug("port is silent, skipping", slog.String("port", p.path))
			continue
		}

		descs = append(descs, zen.SensorDesc{
			Name:         p.name(),
			SerialNumber: p.serialNumber,
			IoType:       IoType,
			Identifier:   p.path,
			BaudRate:     s.DefaultBaudRate(),
		})
	}

	return descs, nil
}

// Open opens the port named by desc.Identifier.
func (s *System) Open(ctx context.Context, desc zen.SensorDesc) (iosys.Interface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if desc.Identifier == "" {
		return nil, iosys.NewRuntimeError("serial: empty port identifier", zen.ErrorInvalidArgument, nil)
	}
	if desc.BaudRate == 0 {
		desc.BaudRate = s.DefaultBaudRate()
	}

	rwc, err := s.open(s.config.portConfig(desc.Identifier, desc.BaudRate))
	if err != nil {
		return nil, iosys.NewRuntimeError(fmt.Sprintf("serial: failed to open '%s'", desc.Identifier), zen.ErrorIoInitFailed, err)
	}

	s.logger.Debug("port opened", slog.String("port", desc.Identifier), slog.Uint64("baud_rate", uint64(desc.BaudRate)))
	return &port{rwc: rwc, desc: desc}, nil
}

func (s *System) patterns() []string {
	if len(s.config.Patterns) > 0 {
		return s.config.Patterns
	}
	return defaultPatterns
}

// probe reports whether the port delivers any bytes within the probe timeout.
func (s *System) probe(name string) bool {
	pc := s.config.portConfig(name, 0)
	pc.ReadTimeout = s.config.ProbeTimeout.Duration(DefaultProbeTimeout)

	rwc, err := s.open(pc)
	if err != nil {
		return false
	}
	defer rwc.Close()

	buf := make([]byte, 64)
	deadline := time.Now().Add(pc.ReadTimeout)
	for time.Now().Before(deadline) {
		n, err := rwc.Read(buf)
		if n > 0 {
			return true
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return false
		}
	}
	return false
}

type portInfo struct {
	path         string
	model        string
	vendor       string
	serialNumber string
}

func (p portInfo) name() string {
	switch {
	case p.model != "" && p.vendor != "":
		return p.vendor + " " + p.model
	case p.model != "":
		return p.model
	default:
		return filepath.Base(p.path)
	}
}

func globPorts(patterns []string) ([]portInfo, error) {
	var ports []portInfo
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern '%s': %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			ports = append(ports, portInfo{path: m})
		}
	}

	return ports, nil
}

// port adapts an open serial port to iosys.Interface.
type port struct {
	rwc  io.ReadWriteCloser
	desc zen.SensorDesc
}

// Read returns (0, nil) when the read timeout elapses without data, so that
// readers can tell a quiet line from a disconnected one.
func (p *port) Read(b []byte) (int, error) {
	n, err := p.rwc.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return n, iosys.NewRuntimeError("serial: read failed", zen.ErrorIoReadFailed, err)
	}
	return n, nil
}

func (p *port) Write(b []byte) (int, error) {
	n, err := p.rwc.Write(b)
	if err != nil {
		return n, iosys.NewRuntimeError("serial: write failed", zen.ErrorIoSendFailed, err)
	}
	return n, nil
}

func (p *port) Close() error {
	if err := p.rwc.Close(); err != nil && !strings.Contains(err.Error(), "file already closed") {
		return iosys.NewRuntimeError("serial: close failed", zen.ErrorIoDeinitFailed, err)
	}
	return nil
}

func (p *port) Desc() zen.SensorDesc {
	return p.desc
}
