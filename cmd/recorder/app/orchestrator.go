package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"github.com/roman-kulish/zen-sensors/internal/client"
	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/sensor"
	"github.com/roman-kulish/zen-sensors/internal/storage"
	"github.com/roman-kulish/zen-sensors/internal/telemetry"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

const flushTimeout = 10 * time.Second

// WithSensors sets the sensors to record
func WithSensors(sensors []SensorConfig) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.sensors = sensors
	}
}

// WithAutoObtain records every discovered sensor, not only the configured ones
func WithAutoObtain(auto bool) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.autoObtain = auto
	}
}

// WithMaxBatchSize sets the maximum batch size of collected samples to store
// within a single database transaction.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxBatchSize = size
	}
}

// WithBufferSize sets how many IMU samples are held for reordering before
// they are stored.
func WithBufferSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.bufferSize = size
	}
}

// WithRescanSchedule sets the cron spec sensors are rediscovered on
func WithRescanSchedule(spec string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.rescanSchedule = spec
	}
}

// WithStatusInterval sets how often recording status is logged
func WithStatusInterval(interval time.Duration) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.statusInterval = interval
	}
}

// sessionConfig is stored with each session.
type sessionConfig struct {
	Model        string        `json:"model,omitempty"`
	Format       string        `json:"format,omitempty"`
	Output       []string      `json:"output"`
	SamplingRate uint32        `json:"samplingRate"`
	Config       *SensorConfig `json:"config,omitempty"`
}

// recording is an obtained sensor being recorded.
type recording struct {
	sensor  *client.ObtainedSensor
	session *storage.Session
	tracker *telemetry.Tracker
	buffer  *sensor.SampleBuffer
	gnss    []storage.GnssRecord

	// host time of the first sample, used to timestamp later samples from
	// the sensor clock
	anchor      time.Time
	anchorFrame uint32
	anchored    bool
}

func (r *recording) name() string {
	return r.sensor.Desc().Name
}

// sensorTime converts a sensor timestamp to host time.
func (r *recording) sensorTime(timestamp float64) time.Time {
	frame := uint32(math.Round(timestamp / ig1.TimestampResolution))
	if !r.anchored {
		r.anchor, r.anchorFrame, r.anchored = time.Now(), frame, true
	}

	ticks := int32(frame - r.anchorFrame)
	return r.anchor.Add(time.Duration(float64(ticks) * ig1.TimestampResolution * float64(time.Second)))
}

// Orchestrator obtains sensors through a client and records their events
// into a store until its context is cancelled. Sensors that disconnect are
// released and obtained again, in the same session, when a rescan finds
// them.
type Orchestrator struct {
	client *client.Client
	store  storage.Store
	logger *slog.Logger

	sensors        []SensorConfig
	autoObtain     bool
	maxBatchSize   int
	bufferSize     int
	rescanSchedule string
	statusInterval time.Duration

	mu         sync.Mutex
	recordings map[zen.SensorHandle]*recording
	sessions   map[string]*storage.Session // by sensor key, kept across reconnects

	imuCount   atomic.Uint64
	gnssCount  atomic.Uint64
	eventCount atomic.Uint64
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(c *client.Client, store storage.Store, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		client:         c,
		store:          store,
		logger:         logger,
		maxBatchSize:   defaultMaxBatchSize,
		bufferSize:     defaultBufferSize,
		statusInterval: defaultStatusInterval,
		recordings:     make(map[zen.SensorHandle]*recording),
		sessions:       make(map[string]*storage.Session),
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

func sensorKey(desc zen.SensorDesc) string {
	return desc.IoType + ":" + desc.Identifier
}

// configFor returns the configuration matching desc. A nil configuration
// with true means the sensor is recorded with its current settings.
func (o *Orchestrator) configFor(desc zen.SensorDesc) (*SensorConfig, bool) {
	for i := range o.sensors {
		s := &o.sensors[i]
		if s.IoType != desc.IoType {
			continue
		}
		if s.Name == desc.Name || s.Name == desc.Identifier || (desc.SerialNumber != "" && s.Name == desc.SerialNumber) {
			return s, s.Enabled
		}
	}
	return nil, o.autoObtain
}

// Run begins recording and blocks until ctx is cancelled
func (o *Orchestrator) Run(ctx context.Context) error {
	descs, err := o.client.ListSensors(ctx)
	if err != nil {
		o.logger.Warn("sensor discovery failed", slog.Any("error", err))
	}
	for _, desc := range descs {
		o.obtain(ctx, desc)
	}

	if o.active() == 0 && o.rescanSchedule == "" {
		return fmt.Errorf("no sensors to record")
	}

	if o.rescanSchedule != "" {
		c := cron.New()
		if _, err = c.AddFunc(o.rescanSchedule, func() { o.rescan(ctx) }); err != nil {
			return fmt.Errorf("scheduling rescans: %w", err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.reportStatus(ctx)
	}()

	for {
		ev, err := o.client.WaitForNextEvent(ctx)
		if err != nil {
			break
		}
		o.handleEvent(ctx, ev)
	}

	cancel()
	wg.Wait()
	o.stop()

	return nil
}

func (o *Orchestrator) rescan(ctx context.Context) {
	if err := o.client.ListSensorsAsync(ctx); err != nil {
		o.logger.Debug("rescan skipped", slog.Any("error", err))
	}
}

func (o *Orchestrator) active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.recordings)
}

func (o *Orchestrator) isRecording(desc zen.SensorDesc) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := sensorKey(desc)
	for _, r := range o.recordings {
		if sensorKey(r.sensor.Desc()) == key {
			return true
		}
	}
	return false
}

// obtain starts recording desc when it is wanted and not recorded yet.
func (o *Orchestrator) obtain(ctx context.Context, desc zen.SensorDesc) {
	config, wanted := o.configFor(desc)
	if !wanted || o.isRecording(desc) {
		return
	}

	r, err := o.startRecording(ctx, desc, config)
	if err != nil {
		o.logger.Error("failed to start recording", slog.String("sensor", desc.String()), slog.Any("error", err))
		return
	}

	o.mu.Lock()
	o.recordings[r.sensor.Handle()] = r
	o.mu.Unlock()

	o.logger.Info("recording started",
		slog.String("sensor", desc.Name),
		slog.Int64("session", r.session.ID),
		slog.String("uuid", r.session.UUID.String()))
}

func (o *Orchestrator) startRecording(ctx context.Context, desc zen.SensorDesc, config *SensorConfig) (r *recording, err error) {
	options := []func(*sensor.Sensor){sensor.WithLogger(o.logger.With(slog.String("sensor", desc.Name)))}
	if config != nil {
		if config.Format != "" {
			options = append(options, sensor.WithFormat(config.Format))
		}
		if config.BaudRate != 0 {
			desc.BaudRate = config.BaudRate
		}
	}

	s, err := o.client.Obtain(ctx, desc, options...)
	if err != nil {
		return nil, fmt.Errorf("obtaining sensor: %w", err)
	}
	defer func() {
		if err != nil {
			_ = s.Release()
		}
	}()

	sc, err := o.configure(ctx, s, config)
	if err != nil {
		return nil, err
	}

	key := sensorKey(desc)

	o.mu.Lock()
	session := o.sessions[key]
	o.mu.Unlock()

	if session == nil {
		if session, err = o.store.CreateSession(ctx, s.Desc(), sc); err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}

		o.mu.Lock()
		o.sessions[key] = session
		o.mu.Unlock()
	}

	buffer, err := sensor.NewSampleBuffer(o.bufferSize, min(o.maxBatchSize, o.bufferSize))
	if err != nil {
		return nil, fmt.Errorf("creating sample buffer: %w", err)
	}

	return &recording{
		sensor:  s,
		session: session,
		tracker: telemetry.NewTracker(s.Handle()),
		buffer:  buffer,
	}, nil
}

// configure applies config to the sensor in command mode and reads back the
// settings it streams with.
func (o *Orchestrator) configure(ctx context.Context, s *client.ObtainedSensor, config *SensorConfig) (*sessionConfig, error) {
	if err := s.SetStreaming(ctx, false); err != nil {
		return nil, fmt.Errorf("entering command mode: %w", err)
	}

	if config != nil && config.SamplingRate != 0 {
		if err := s.SetSamplingRate(ctx, config.SamplingRate); err != nil {
			return nil, fmt.Errorf("setting sampling rate: %w", err)
		}
	}
	if config != nil && config.Output != 0 {
		if err := s.SetOutputConfig(ctx, config.Output); err != nil {
			return nil, fmt.Errorf("setting output config: %w", err)
		}
	}

	output, err := s.OutputConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading output config: %w", err)
	}
	rate, err := s.SamplingRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sampling rate: %w", err)
	}

	model, err := s.SensorModel(ctx)
	if err != nil {
		o.logger.Warn("failed to read sensor model", slog.Any("error", err))
	}

	if err = s.SetStreaming(ctx, true); err != nil {
		return nil, fmt.Errorf("entering stream mode: %w", err)
	}

	sc := sessionConfig{
		Model:        model,
		Output:       output.Names(),
		SamplingRate: rate,
		Config:       config,
	}
	if config != nil {
		sc.Format = string(config.Format)
	}
	return &sc, nil
}

func (o *Orchestrator) lookup(handle zen.SensorHandle) *recording {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recordings[handle]
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev zen.Event) {
	switch p := ev.Payload().(type) {
	case zen.ImuData:
		if r := o.lookup(ev.Sensor()); r != nil {
			r.tracker.Observe(ev)
			o.handleImu(ctx, r, p)
		}

	case zen.GnssData:
		if r := o.lookup(ev.Sensor()); r != nil {
			r.tracker.Observe(ev)
			o.handleGnss(ctx, r, p)
		}

	case zen.SensorDisconnected:
		if r := o.lookup(ev.Sensor()); r != nil {
			r.tracker.Observe(ev)
			o.logger.Warn("sensor disconnected", slog.String("sensor", r.name()), slog.String("error", p.Error.Error()))
			o.storeEvent(ctx, r.session.ID, ev)
			o.finish(ctx, r)
		}

	case zen.SensorDesc:
		o.mu.Lock()
		session := o.sessions[sensorKey(p)]
		o.mu.Unlock()

		if session != nil && !o.isRecording(p) {
			o.storeEvent(ctx, session.ID, ev)
		}
		o.obtain(ctx, p)

	case zen.SensorListingProgress:
		if p.Complete {
			o.logger.Debug("sensor rescan complete")
		}
	}
}

func (o *Orchestrator) handleImu(ctx context.Context, r *recording, sample zen.ImuData) {
	r.sensorTime(sample.Timestamp) // anchors the clock on the first sample

	if err := r.buffer.Insert(sample); err != nil {
		if errors.Is(err, sensor.ErrDuplicateFrame) {
			o.logger.Debug("duplicate frame dropped", slog.String("sensor", r.name()), slog.Uint64("frame", uint64(sample.FrameCount)))
			return
		}
		o.logger.Error("failed to buffer sample", slog.Any("error", err))
		return
	}
	o.imuCount.Add(1)

	if r.buffer.IsFull() {
		o.storeImu(ctx, r, r.buffer.Flush())
	}
}

func (o *Orchestrator) handleGnss(ctx context.Context, r *recording, sample zen.GnssData) {
	r.gnss = append(r.gnss, storage.GnssRecord{ReceivedAt: r.sensorTime(sample.Timestamp), Data: sample})
	o.gnssCount.Add(1)

	if len(r.gnss) >= o.maxBatchSize {
		o.storeGnss(ctx, r)
	}
}

func (o *Orchestrator) storeImu(ctx context.Context, r *recording, samples []zen.ImuData) {
	records := make([]storage.ImuRecord, len(samples))
	for i, s := range samples {
		records[i] = storage.ImuRecord{ReceivedAt: r.sensorTime(s.Timestamp), Data: s}
	}

	for chunk := range slices.Chunk(records, o.maxBatchSize) {
		if err := o.store.StoreImuSamples(ctx, r.session.ID, chunk); err != nil {
			o.logger.Error("failed to store imu samples", slog.String("sensor", r.name()), slog.Any("error", err))
			return
		}
	}
}

func (o *Orchestrator) storeGnss(ctx context.Context, r *recording) {
	if len(r.gnss) == 0 {
		return
	}

	if err := o.store.StoreGnssSamples(ctx, r.session.ID, r.gnss); err != nil {
		o.logger.Error("failed to store gnss samples", slog.String("sensor", r.name()), slog.Any("error", err))
	}
	r.gnss = r.gnss[:0]
}

func (o *Orchestrator) storeEvent(ctx context.Context, sessionID int64, ev zen.Event) {
	if err := o.store.StoreEvent(ctx, sessionID, time.Now(), ev); err != nil {
		o.logger.Error("failed to store event", slog.Any("error", err))
		return
	}
	o.eventCount.Add(1)
}

// finish stores everything buffered for r and releases its sensor.
func (o *Orchestrator) finish(ctx context.Context, r *recording) {
	o.storeImu(ctx, r, r.buffer.DrainAll())
	o.storeGnss(ctx, r)

	o.mu.Lock()
	delete(o.recordings, r.sensor.Handle())
	o.mu.Unlock()

	if err := r.sensor.Release(); err != nil && !errors.Is(err, zen.ErrUseAfterRelease) {
		o.logger.Warn("failed to release sensor", slog.String("sensor", r.name()), slog.Any("error", err))
	}
}

// stop finishes every recording. The run context is done by now, so storing
// uses a context of its own.
func (o *Orchestrator) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	o.mu.Lock()
	recordings := make([]*recording, 0, len(o.recordings))
	for _, r := range o.recordings {
		recordings = append(recordings, r)
	}
	o.mu.Unlock()

	for _, r := range recordings {
		o.finish(ctx, r)
	}

	o.logger.Info("recording stopped",
		slog.String("imu", humanize.Comma(int64(o.imuCount.Load()))),
		slog.String("gnss", humanize.Comma(int64(o.gnssCount.Load()))),
		slog.String("events", humanize.Comma(int64(o.eventCount.Load()))))
}

func (o *Orchestrator) reportStatus(ctx context.Context) {
	if o.statusInterval <= 0 {
		return
	}

	ticker := time.NewTicker(o.statusInterval)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		o.logger.Info("recording status",
			slog.Int("sensors", o.active()),
			slog.String("imu", humanize.Comma(int64(o.imuCount.Load()))),
			slog.String("gnss", humanize.Comma(int64(o.gnssCount.Load()))),
			slog.String("dropped", humanize.Comma(int64(o.client.Dropped()))),
			slog.String("started", humanize.Time(started)))

		o.mu.Lock()
		providers := make(map[string]telemetry.Provider, len(o.recordings))
		for _, r := range o.recordings {
			providers[r.name()] = r.tracker
		}
		o.mu.Unlock()

		for name, p := range providers {
			o.logTelemetry(name, p)
		}
	}
}

func (o *Orchestrator) logTelemetry(name string, p telemetry.Provider) {
	t := p.Get()
	if t == nil {
		return
	}

	attrs := []any{slog.String("sensor", name), slog.Uint64("frame", uint64(t.FrameCount))}
	if t.Roll != nil && t.Pitch != nil && t.Yaw != nil {
		attrs = append(attrs, slog.String("rpy", fmt.Sprintf("%.1f/%.1f/%.1f", *t.Roll, *t.Pitch, *t.Yaw)))
	}
	if t.Temperature != nil {
		attrs = append(attrs, slog.String("temperature", fmt.Sprintf("%.1f°C", *t.Temperature)))
	}
	if t.Latitude != nil && t.Longitude != nil {
		attrs = append(attrs, slog.String("position", fmt.Sprintf("%.6f,%.6f", *t.Latitude, *t.Longitude)))
	}
	if t.NumSatellites != nil {
		attrs = append(attrs, slog.Int("satellites", int(*t.NumSatellites)))
	}
	o.logger.Info("sensor telemetry", attrs...)
}
