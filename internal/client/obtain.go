package client

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roman-kulish/zen-sensors/internal/sensor"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// sensorQueueSize buffers events between a sensor's read loop and the
// client queue.
const sensorQueueSize = 64

// ObtainedSensor is a sensor obtained through a Client. It stays valid until
// it is released; afterwards its methods fail with zen.ErrUseAfterRelease.
type ObtainedSensor struct {
	*sensor.Sensor

	client *Client
	events chan zen.Event
	done   chan struct{}
}

// Release releases the sensor. It is equivalent to Client.Release.
func (o *ObtainedSensor) Release() error {
	return o.client.Release(o.Handle())
}

func (o *ObtainedSensor) close() error {
	err := o.Sensor.Close()
	<-o.done
	return err
}

// forward moves events from the sensor into the client queue until the read
// loop stops.
func (o *ObtainedSensor) forward(stopped <-chan error) {
	defer close(o.done)

	for {
		select {
		case ev := <-o.events:
			o.client.publish(ev)
		case err := <-stopped:
			if err != nil {
				o.client.logger.Warn("sensor stopped", slog.Uint64("sensor", uint64(o.Handle())), slog.Any("error", err))
			}
			for {
				select {
				case ev := <-o.events:
					o.client.publish(ev)
				default:
					return
				}
			}
		}
	}
}

// Obtain connects to the sensor described by desc and starts streaming its
// events into the client queue. Sensors obtained without a baud rate use the
// default of their IO system.
func (c *Client) Obtain(ctx context.Context, desc zen.SensorDesc, options ...func(*sensor.Sensor)) (*ObtainedSensor, error) {
	system, err := c.registry.Get(desc.IoType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", zen.ErrorDeviceIoTypeInvalid, err)
	}
	if desc.BaudRate == 0 {
		desc.BaudRate = system.DefaultBaudRate()
	}

	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil, zen.ErrUseAfterRelease
	}
	key := desc.IoType + ":" + desc.Identifier
	if _, ok := c.opening[key]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: %s already obtained: %w", desc, zen.ErrorIoBusy)
	}
	for _, o := range c.sensors {
		if d := o.Desc(); d.IoType == desc.IoType && d.Identifier == desc.Identifier {
			c.mu.Unlock()
			return nil, fmt.Errorf("client: %s already obtained: %w", desc, zen.ErrorIoBusy)
		}
	}
	c.opening[key] = struct{}{}
	handle := c.nextHandle
	c.nextHandle++
	c.mu.Unlock()

	// The reservation is held until the sensor is registered or obtaining it
	// failed.
	defer func() {
		c.mu.Lock()
		delete(c.opening, key)
		c.mu.Unlock()
	}()

	iface, err := system.Open(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("client: failed to open %s: %w", desc, err)
	}

	options = append([]func(*sensor.Sensor){sensor.WithLogger(c.logger)}, options...)
	s, err := sensor.New(handle, iface, options...)
	if err != nil {
		_ = iface.Close()
		return nil, err
	}

	o := &ObtainedSensor{
		Sensor: s,
		client: c,
		events: make(chan zen.Event, sensorQueueSize),
		done:   make(chan struct{}),
	}

	stopped, err := s.Start(c.ctx, o.events)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		close(o.done)
		_ = s.Close()
		return nil, zen.ErrUseAfterRelease
	}
	c.sensors[handle] = o
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		o.forward(stopped)
	}()

	c.logger.Info("sensor obtained", slog.Uint64("sensor", uint64(handle)), slog.String("desc", desc.String()))
	return o, nil
}

// ObtainByName lists the sensors of the ioType system and obtains the one
// whose name, identifier or serial number equals name. A zero baudRate keeps
// the listed baud rate.
func (c *Client) ObtainByName(ctx context.Context, ioType, name string, baudRate uint32, options ...func(*sensor.Sensor)) (*ObtainedSensor, error) {
	system, err := c.registry.Get(ioType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", zen.ErrorDeviceIoTypeInvalid, err)
	}

	descs, err := system.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", zen.ErrorDeviceListingFailed, err)
	}

	for _, desc := range descs {
		if desc.Name != name && desc.Identifier != name && (desc.SerialNumber == "" || desc.SerialNumber != name) {
			continue
		}
		if baudRate != 0 {
			desc.BaudRate = baudRate
		}
		return c.Obtain(ctx, desc, options...)
	}

	return nil, fmt.Errorf("client: sensor '%s' not found on %s: %w", name, ioType, zen.ErrorUnknownDeviceID)
}

// Sensor returns an obtained sensor by handle.
func (c *Client) Sensor(handle zen.SensorHandle) (*ObtainedSensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.sensors[handle]
	if !ok {
		return nil, zen.ErrUseAfterRelease
	}
	return o, nil
}

// Sensors returns the handles of all obtained sensors.
func (c *Client) Sensors() []zen.SensorHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	handles := make([]zen.SensorHandle, 0, len(c.sensors))
	for h := range c.sensors {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles
}

// Release stops the sensor and closes its IO interface. Releasing a handle
// twice fails with zen.ErrUseAfterRelease.
func (c *Client) Release(handle zen.SensorHandle) error {
	c.mu.Lock()
	o, ok := c.sensors[handle]
	delete(c.sensors, handle)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("client: sensor %d: %w", handle, zen.ErrUseAfterRelease)
	}

	c.logger.Info("sensor released", slog.Uint64("sensor", uint64(handle)))
	return o.close()
}
