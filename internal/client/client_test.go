package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/iosys/sim"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

type fakeSystem struct {
	typ   string
	descs []zen.SensorDesc
	err   error
	block chan struct{}

	opens     atomic.Int32
	openBlock chan struct{}
}

func (f *fakeSystem) Type() string            { return f.typ }
func (f *fakeSystem) DefaultBaudRate() uint32 { return 115200 }

func (f *fakeSystem) List(ctx context.Context) ([]zen.SensorDesc, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.descs, f.err
}

func (f *fakeSystem) Open(ctx context.Context, _ zen.SensorDesc) (iosys.Interface, error) {
	f.opens.Add(1)
	if f.openBlock != nil {
		select {
		case <-f.openBlock:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, errors.New("not supported")
}

func newTestClient(t *testing.T, systems ...iosys.System) *Client {
	t.Helper()

	registry, err := iosys.NewRegistry(systems...)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	c, err := New(registry)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newSimSystem(t *testing.T, names ...string) *sim.System {
	t.Helper()

	var sensors []sim.SensorConfig
	for _, n := range names {
		sensors = append(sensors, sim.SensorConfig{Name: n, SamplingRate: 100})
	}
	s, err := sim.New(&sim.Config{Sensors: sensors})
	if err != nil {
		t.Fatalf("Failed to create sim system: %v", err)
	}
	return s
}

func waitEvent(t *testing.T, c *Client, match func(zen.Event) bool) zen.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		ev, err := c.WaitForNextEvent(ctx)
		if err != nil {
			t.Fatalf("Failed to wait for event: %v", err)
		}
		if match(ev) {
			return ev
		}
	}
}

func TestListSensorsAsyncProgress(t *testing.T) {
	a := &fakeSystem{typ: "a", descs: []zen.SensorDesc{{Name: "a1", IoType: "a"}, {Name: "a2", IoType: "a"}}}
	b := &fakeSystem{typ: "b", descs: []zen.SensorDesc{{Name: "b1", IoType: "b"}}}
	c := newTestClient(t, a, b)

	if err := c.ListSensorsAsync(context.Background()); err != nil {
		t.Fatalf("Failed to start listing: %v", err)
	}

	type step struct {
		progress float32
		found    string
	}
	want := []step{{progress: 0.25}, {found: "a1"}, {found: "a2"}, {progress: 0.75}, {found: "b1"}, {progress: 1}}

	for i, w := range want {
		ev := waitEvent(t, c, func(zen.Event) bool { return true })

		if w.found != "" {
			desc, err := ev.SensorFound()
			if err != nil || desc.Name != w.found {
				t.Fatalf("event %d = %s, want SensorFound %s", i, ev, w.found)
			}
			continue
		}

		p, err := ev.SensorListingProgress()
		if err != nil {
			t.Fatalf("event %d = %s, want progress %v", i, ev, w.progress)
		}
		if p.Progress != w.progress || p.Complete != (w.progress == 1) {
			t.Errorf("event %d progress = %+v, want %v", i, p, w.progress)
		}
	}
}

func TestListSensorsBusy(t *testing.T) {
	slow := &fakeSystem{typ: "slow", block: make(chan struct{})}
	c := newTestClient(t, slow)

	if err := c.ListSensorsAsync(context.Background()); err != nil {
		t.Fatalf("Failed to start listing: %v", err)
	}
	if err := c.ListSensorsAsync(context.Background()); !errors.Is(err, zen.ErrorDeviceListing) {
		t.Errorf("second ListSensorsAsync() error = %v, want Device_Listing", err)
	}
	if _, err := c.ListSensors(context.Background()); !errors.Is(err, zen.ErrorDeviceListing) {
		t.Errorf("ListSensors() during listing error = %v, want Device_Listing", err)
	}

	close(slow.block)
	waitEvent(t, c, func(ev zen.Event) bool {
		p, err := ev.SensorListingProgress()
		return err == nil && p.Complete
	})

	// listing flag is cleared after the complete event is published
	deadline := time.Now().Add(time.Second)
	for c.isListing.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := c.ListSensorsAsync(context.Background()); err != nil {
		t.Errorf("ListSensorsAsync() after completion error = %v", err)
	}
}

func TestListSensorsCancelled(t *testing.T) {
	slow := &fakeSystem{typ: "slow", block: make(chan struct{})}
	next := &fakeSystem{typ: "next", descs: []zen.SensorDesc{{Name: "n1", IoType: "next"}}}
	c := newTestClient(t, slow, next)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.ListSensorsAsync(ctx); err != nil {
		t.Fatalf("Failed to start listing: %v", err)
	}

	ev := waitEvent(t, c, func(zen.Event) bool { return true })
	if p, err := ev.SensorListingProgress(); err != nil || p.Complete {
		t.Fatalf("first event = %s, want incomplete progress", ev)
	}
	cancel()

	deadline := time.Now().Add(3 * time.Second)
	for c.isListing.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.isListing.Load() {
		t.Fatal("listing did not stop after cancellation")
	}

	for {
		ev, ok := c.PollNextEvent()
		if !ok {
			break
		}
		if p, err := ev.SensorListingProgress(); err == nil && p.Complete {
			t.Errorf("cancelled listing published a complete event: %+v", p)
		}
		if _, err := ev.SensorFound(); err == nil {
			t.Errorf("cancelled listing published %s", ev)
		}
	}

	if _, err := c.ListSensors(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ListSensors() with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestListSensors(t *testing.T) {
	broken := &fakeSystem{typ: "broken", err: errors.New("bus error")}
	c := newTestClient(t, broken, newSimSystem(t, "imu0"))

	descs, err := c.ListSensors(context.Background())
	if err != nil {
		t.Fatalf("Failed to list sensors: %v", err)
	}
	if len(descs) != 1 || descs[0].Name != "imu0" || descs[0].IoType != sim.IoType {
		t.Errorf("ListSensors() = %v", descs)
	}

	c = newTestClient(t, broken)
	if _, err = c.ListSensors(context.Background()); !errors.Is(err, zen.ErrorDeviceListingFailed) {
		t.Errorf("ListSensors() error = %v, want Device_ListingFailed", err)
	}
}

func TestObtainAndRelease(t *testing.T) {
	c := newTestClient(t, newSimSystem(t, "imu0", "imu1"))
	ctx := context.Background()

	o0, err := c.ObtainByName(ctx, sim.IoType, "imu0", 0)
	if err != nil {
		t.Fatalf("Failed to obtain imu0: %v", err)
	}
	o1, err := c.Obtain(ctx, zen.SensorDesc{Name: "imu1", IoType: sim.IoType, Identifier: "imu1"})
	if err != nil {
		t.Fatalf("Failed to obtain imu1: %v", err)
	}
	if o0.Handle() == o1.Handle() {
		t.Fatalf("handles are not unique: %d", o0.Handle())
	}
	if o1.Desc().BaudRate == 0 {
		t.Error("obtained sensor has no baud rate")
	}

	ev := waitEvent(t, c, func(ev zen.Event) bool { return ev.Sensor() == o1.Handle() })
	if ev.Type() != zen.EventTypeImu {
		t.Errorf("event type = %s, want %s", ev.Type(), zen.EventTypeImu)
	}

	if _, err = c.ObtainByName(ctx, sim.IoType, "imu0", 0); !errors.Is(err, zen.ErrorIoBusy) {
		t.Errorf("second ObtainByName() error = %v, want Io_Busy", err)
	}

	if got := c.Sensors(); len(got) != 2 {
		t.Errorf("Sensors() = %v, want two handles", got)
	}

	if err = o0.Release(); err != nil {
		t.Fatalf("Failed to release imu0: %v", err)
	}
	if err = c.Release(o0.Handle()); !errors.Is(err, zen.ErrUseAfterRelease) {
		t.Errorf("second Release() error = %v, want ErrUseAfterRelease", err)
	}
	if _, err = c.Sensor(o0.Handle()); !errors.Is(err, zen.ErrUseAfterRelease) {
		t.Errorf("Sensor() of released handle error = %v, want ErrUseAfterRelease", err)
	}
	if _, err = o0.SensorModel(ctx); !errors.Is(err, zen.ErrUseAfterRelease) {
		t.Errorf("SensorModel() of released sensor error = %v, want ErrUseAfterRelease", err)
	}

	// released sensors can be obtained again
	o0, err = c.ObtainByName(ctx, sim.IoType, "imu0", 0)
	if err != nil {
		t.Fatalf("Failed to obtain imu0 again: %v", err)
	}
	if _, err = o0.SensorModel(ctx); err != nil {
		t.Errorf("Failed to read sensor model: %v", err)
	}
}

func TestObtainErrors(t *testing.T) {
	c := newTestClient(t, newSimSystem(t, "imu0"))
	ctx := context.Background()

	if _, err := c.ObtainByName(ctx, sim.IoType, "missing", 0); !errors.Is(err, zen.ErrorUnknownDeviceID) {
		t.Errorf("ObtainByName(missing) error = %v, want UnknownDeviceID", err)
	}

	_, err := c.Obtain(ctx, zen.SensorDesc{Name: "x", IoType: "can"})
	if !errors.Is(err, zen.ErrorDeviceIoTypeInvalid) || !errors.Is(err, iosys.ErrUnknownIoType) {
		t.Errorf("Obtain(can) error = %v, want Device_IoTypeInvalid wrapping ErrUnknownIoType", err)
	}
}

func TestObtainConcurrentSameSensor(t *testing.T) {
	sys := &fakeSystem{typ: "fake", openBlock: make(chan struct{})}
	c := newTestClient(t, sys)
	ctx := context.Background()
	desc := zen.SensorDesc{Name: "imu0", IoType: "fake", Identifier: "fake-0"}

	first := make(chan error, 1)
	go func() {
		_, err := c.Obtain(ctx, desc)
		first <- err
	}()

	deadline := time.Now().Add(3 * time.Second)
	for sys.opens.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sys.opens.Load() != 1 {
		t.Fatalf("first Obtain() did not reach Open")
	}

	if _, err := c.Obtain(ctx, desc); !errors.Is(err, zen.ErrorIoBusy) {
		t.Errorf("concurrent Obtain() error = %v, want Io_Busy", err)
	}
	if n := sys.opens.Load(); n != 1 {
		t.Errorf("Open() called %d times, want 1", n)
	}

	other := zen.SensorDesc{Name: "imu1", IoType: "fake", Identifier: "fake-1"}
	second := make(chan error, 1)
	go func() {
		_, err := c.Obtain(ctx, other)
		second <- err
	}()

	close(sys.openBlock)
	if err := <-first; err == nil || errors.Is(err, zen.ErrorIoBusy) {
		t.Errorf("first Obtain() error = %v, want open failure", err)
	}
	if err := <-second; err == nil || errors.Is(err, zen.ErrorIoBusy) {
		t.Errorf("Obtain() of another sensor error = %v, want open failure", err)
	}

	// the reservation is released when obtaining fails
	if _, err := c.Obtain(ctx, desc); err == nil || errors.Is(err, zen.ErrorIoBusy) {
		t.Errorf("Obtain() after failed attempt error = %v, want open failure", err)
	}
	if n := sys.opens.Load(); n != 3 {
		t.Errorf("Open() called %d times, want 3", n)
	}
}

func TestQueueDrops(t *testing.T) {
	registry, err := iosys.NewRegistry(newSimSystem(t, "imu0"))
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	c, err := New(registry, WithQueueSize(1))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	if _, err = c.ObtainByName(context.Background(), sim.IoType, "imu0", 0); err != nil {
		t.Fatalf("Failed to obtain sensor: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for c.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Dropped() == 0 {
		t.Error("no events dropped from a full queue")
	}

	if _, ok := c.PollNextEvent(); !ok {
		t.Error("PollNextEvent() on a full queue returned nothing")
	}
}

func TestClose(t *testing.T) {
	registry, err := iosys.NewRegistry(newSimSystem(t, "imu0"))
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	c, err := New(registry)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	o, err := c.ObtainByName(context.Background(), sim.IoType, "imu0", 0)
	if err != nil {
		t.Fatalf("Failed to obtain sensor: %v", err)
	}

	if err = c.Close(); err != nil {
		t.Fatalf("Failed to close client: %v", err)
	}
	if err = c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	if _, err = o.SamplingRate(context.Background()); !errors.Is(err, zen.ErrUseAfterRelease) {
		t.Errorf("SamplingRate() after Close error = %v, want ErrUseAfterRelease", err)
	}
	if _, err = c.ObtainByName(context.Background(), sim.IoType, "imu0", 0); !errors.Is(err, zen.ErrUseAfterRelease) {
		t.Errorf("ObtainByName() after Close error = %v, want ErrUseAfterRelease", err)
	}
	if err = c.ListSensorsAsync(context.Background()); !errors.Is(err, zen.ErrUseAfterRelease) {
		t.Errorf("ListSensorsAsync() after Close error = %v, want ErrUseAfterRelease", err)
	}

	// the queue drains, then reports the client closed
	for {
		_, err = c.WaitForNextEvent(context.Background())
		if err != nil {
			break
		}
	}
	if !errors.Is(err, zen.ErrUseAfterRelease) {
		t.Errorf("WaitForNextEvent() after Close error = %v, want ErrUseAfterRelease", err)
	}
}
