package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/lpbus"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// Execute sends a command and waits for its reply. It returns the reply
// payload, which is empty for acknowledged commands. A refused command fails
// with zen.ErrorFWFunctionFailed.
func (s *Sensor) Execute(ctx context.Context, function uint16, data []byte) ([]byte, error) {
	return s.execute(ctx, function, data, nil)
}

func (s *Sensor) execute(ctx context.Context, function uint16, data []byte, onAck func()) ([]byte, error) {
	if s.isClosed.Load() {
		return nil, zen.ErrUseAfterRelease
	}
	if !s.isRunning.Load() {
		return nil, ErrNotRunning
	}

	raw, err := s.factory.MakeFrame(Address, function, data)
	if err != nil {
		return nil, fmt.Errorf("sensor %d: command %d: %w", s.handle, function, err)
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	p := &pendingCommand{function: function, reply: make(chan lpbus.Frame, 1), onAck: onAck}
	s.pendingMu.Lock()
	s.pending = p
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		if s.pending == p {
			s.pending = nil
		}
		s.pendingMu.Unlock()
	}()

	if !s.isRunning.Load() {
		return nil, ErrNotRunning
	}

	if _, err = s.iface.Write(raw); err != nil {
		return nil, iosys.NewRuntimeError(fmt.Sprintf("sensor %d: command %d", s.handle, function), zen.ErrorIoSendFailed, err)
	}

	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()

	var reply lpbus.Frame
	var ok bool
	select {
	case reply, ok = <-p.reply:
		if !ok {
			return nil, ErrNotRunning
		}
	case <-timer.C:
		return nil, fmt.Errorf("sensor %d: command %d: %w", s.handle, function, zen.ErrorIoTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.logger.Debug("command executed", slog.Int("function", int(function)), slog.Int("reply", int(reply.Function)))

	switch reply.Function {
	case ig1.FunctionNack:
		return nil, fmt.Errorf("sensor %d: command %d: %w", s.handle, function, zen.ErrorFWFunctionFailed)
	case ig1.FunctionAck, function:
		return reply.Data()
	default:
		return nil, fmt.Errorf("sensor %d: command %d: %w", s.handle, function, zen.ErrorIoUnexpectedFunction)
	}
}

func (s *Sensor) getString(ctx context.Context, function uint16) (string, error) {
	data, err := s.Execute(ctx, function, nil)
	if err != nil {
		return "", err
	}
	return ig1.DecodeString(data)
}

func (s *Sensor) getUint32(ctx context.Context, function uint16) (uint32, error) {
	data, err := s.Execute(ctx, function, nil)
	if err != nil {
		return 0, err
	}
	return ig1.DecodeUint32(data)
}

// SensorModel returns the model name reported by the sensor.
func (s *Sensor) SensorModel(ctx context.Context) (string, error) {
	return s.getString(ctx, ig1.FunctionGetSensorModel)
}

// SerialNumber returns the serial number reported by the sensor.
func (s *Sensor) SerialNumber(ctx context.Context) (string, error) {
	return s.getString(ctx, ig1.FunctionGetSerialNumber)
}

// OutputConfig reads the IMU output configuration and adopts it for decoding.
func (s *Sensor) OutputConfig(ctx context.Context) (ig1.OutputConfig, error) {
	v, err := s.getUint32(ctx, ig1.FunctionGetOutputConfig)
	if err != nil {
		return 0, err
	}

	output := ig1.OutputConfig(v)
	if err = output.Validate(); err != nil {
		return 0, fmt.Errorf("sensor %d: output config %#x: %w", s.handle, v, err)
	}
	s.output.Store(v)

	return output, nil
}

// SetOutputConfig changes the IMU output configuration. Data frames following
// the acknowledgement are decoded with the new configuration.
func (s *Sensor) SetOutputConfig(ctx context.Context, output ig1.OutputConfig) error {
	if err := output.Validate(); err != nil {
		return fmt.Errorf("%w: %w", zen.ErrorInvalidArgument, err)
	}

	_, err := s.execute(ctx, ig1.FunctionSetOutputConfig, ig1.EncodeUint32(uint32(output)), func() {
		s.output.Store(uint32(output))
	})
	return err
}

// SamplingRate returns the data rate in Hz.
func (s *Sensor) SamplingRate(ctx context.Context) (uint32, error) {
	return s.getUint32(ctx, ig1.FunctionGetSamplingRate)
}

// SetSamplingRate changes the data rate in Hz.
func (s *Sensor) SetSamplingRate(ctx context.Context, hz uint32) error {
	if hz == 0 {
		return fmt.Errorf("%w: sampling rate must be positive", zen.ErrorInvalidArgument)
	}

	_, err := s.Execute(ctx, ig1.FunctionSetSamplingRate, ig1.EncodeUint32(hz))
	return err
}

// SetStreaming switches the sensor between streaming and command mode.
func (s *Sensor) SetStreaming(ctx context.Context, on bool) error {
	function := ig1.FunctionGotoCommandMode
	if on {
		function = ig1.FunctionGotoStreamMode
	}

	_, err := s.Execute(ctx, function, nil)
	return err
}
