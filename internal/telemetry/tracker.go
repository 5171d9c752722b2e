package telemetry

import (
	"sync"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// StandardGravity converts accelerations from g to m/s².
const StandardGravity = 9.80665

// Tracker folds the events of one sensor into its latest Telemetry. It
// implements Provider.
type Tracker struct {
	sensor zen.SensorHandle
	now    func() time.Time

	mu     sync.RWMutex
	latest *Telemetry
}

// NewTracker creates a tracker for events of sensor. A zero handle tracks
// events of every sensor.
func NewTracker(sensor zen.SensorHandle) *Tracker {
	return &Tracker{sensor: sensor, now: time.Now}
}

func ptr[T any](v T) *T {
	return &v
}

// Observe folds ev into the snapshot. Events of other sensors and discovery
// events are ignored.
func (t *Tracker) Observe(ev zen.Event) {
	if t.sensor != 0 && ev.Sensor() != t.sensor {
		return
	}

	switch p := ev.Payload().(type) {
	case zen.ImuData:
		t.update(func(s *Telemetry) {
			s.FrameCount = p.FrameCount
			s.Roll = ptr(float64(p.R[0]))
			s.Pitch = ptr(float64(p.R[1]))
			s.Yaw = ptr(float64(p.R[2]))
			s.AccelX = ptr(float64(p.A[0]) * StandardGravity)
			s.AccelY = ptr(float64(p.A[1]) * StandardGravity)
			s.AccelZ = ptr(float64(p.A[2]) * StandardGravity)
			if p.Altitude != 0 {
				s.Altitude = ptr(float64(p.Altitude))
			}
			if p.Temperature != 0 {
				s.Temperature = ptr(float64(p.Temperature))
			}
		})

	case zen.GnssData:
		t.update(func(s *Telemetry) {
			s.FixType = ptr(p.FixType)
			s.NumSatellites = ptr(p.NumberSatellitesUsed)
			if p.FixType == zen.GnssFixNoFix || p.FixType == zen.GnssFixTimeOnly {
				return
			}
			s.Latitude = ptr(p.Latitude)
			s.Longitude = ptr(p.Longitude)
			s.Height = ptr(p.Height)
			s.GroundSpeed = ptr(p.Velocity)
			s.GroundCourse = ptr(p.Heading)
		})

	case zen.SensorDisconnected:
		t.update(func(s *Telemetry) {
			s.Disconnected = ptr(p.Error)
		})
	}
}

func (t *Tracker) update(fn func(s *Telemetry)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := &Telemetry{}
	if t.latest != nil {
		*next = *t.latest
	}
	fn(next)
	next.Timestamp = t.now()

	t.latest = next
}

// Get returns the latest snapshot, or nil before the first measurement. The
// snapshot is never modified after it is returned.
func (t *Tracker) Get() *Telemetry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.latest
}
