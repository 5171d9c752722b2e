package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// ListSensorsAsync discovers sensors in the background. For each of the n
// registered IO systems it publishes a SensorListingProgress event of
// (i+0.5)/n followed by a SensorFound event per sensor of that system, and
// finishes with a complete progress of 1 once every system was listed. A
// cancelled listing stops without the complete event. Only one listing runs
// at a time, a second call fails with zen.ErrorDeviceListing.
func (c *Client) ListSensorsAsync(ctx context.Context) error {
	if !c.isListing.CompareAndSwap(false, true) {
		return zen.ErrorDeviceListing
	}

	err := c.goTracked(func() {
		defer c.isListing.Store(false)
		if _, err := c.listSensors(ctx, c.publish); err != nil {
			c.logger.Debug("sensor listing stopped", slog.Any("error", err))
		}
	})
	if err != nil {
		c.isListing.Store(false)
		return err
	}
	return nil
}

// ListSensors discovers sensors and returns them. It runs the same discovery
// as ListSensorsAsync, without publishing events.
func (c *Client) ListSensors(ctx context.Context) ([]zen.SensorDesc, error) {
	if !c.isListing.CompareAndSwap(false, true) {
		return nil, zen.ErrorDeviceListing
	}
	defer c.isListing.Store(false)

	var found []zen.SensorDesc
	failures, err := c.listSensors(ctx, func(ev zen.Event) {
		if desc, err := ev.SensorFound(); err == nil {
			found = append(found, desc)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 && len(failures) > 0 {
		return nil, errors.Join(zen.ErrorDeviceListingFailed, errors.Join(failures...))
	}
	return found, nil
}

// listSensors walks the registered systems. It returns the failures of
// individual systems, and an error when ctx or the client stopped the walk.
func (c *Client) listSensors(ctx context.Context, emit func(zen.Event)) ([]error, error) {
	systems := c.registry.Systems()
	n := float32(len(systems))

	var failures []error
	for i, system := range systems {
		if err := c.listingStopped(ctx); err != nil {
			return failures, err
		}

		emit(zen.NewEvent(0, 0, zen.SensorListingProgress{Progress: (float32(i) + 0.5) / n}))

		descs, err := system.List(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("failed to list sensors", slog.String("ioType", system.Type()), slog.Any("error", err))
			}
			failures = append(failures, err)
			continue
		}

		for _, desc := range descs {
			c.logger.Debug("sensor found", slog.String("desc", desc.String()))
			emit(zen.NewEvent(0, 0, desc))
		}
	}
	if err := c.listingStopped(ctx); err != nil {
		return failures, err
	}

	emit(zen.NewEvent(0, 0, zen.SensorListingProgress{Progress: 1, Complete: true}))
	return failures, nil
}

func (c *Client) listingStopped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ctx.Err() != nil {
		return zen.ErrUseAfterRelease
	}
	return nil
}
