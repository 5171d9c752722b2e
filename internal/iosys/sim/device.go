package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/iosys"
	"github.com/roman-kulish/zen-sensors/internal/lpbus"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// Address is the bus address simulated sensors answer with.
const Address uint16 = 1

const (
	stringReplySize = 24
	gnssRate        = 10 // Hz
	metersPerDegree = 111320.0
)

var errUnplugged = iosys.NewRuntimeError("sim: sensor unplugged", zen.ErrorIoReadFailed, nil)

// device is a running simulated sensor. The host side reads rx and writes tx.
type device struct {
	config  SensorConfig
	desc    zen.SensorDesc
	logger  *slog.Logger
	factory lpbus.Factory
	parser  lpbus.Parser
	release func()

	rxR *io.PipeReader
	rxW *io.PipeWriter
	txR *io.PipeReader
	txW *io.PipeWriter
	wmu sync.Mutex

	mu        sync.Mutex
	output    ig1.OutputConfig
	rate      uint32
	streaming bool

	poweredOn time.Time
	ticks     uint32

	closed atomic.Bool
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

func newDevice(config SensorConfig, desc zen.SensorDesc, logger *slog.Logger, release func()) (*device, error) {
	factory, err := lpbus.NewFactory(config.Format)
	if err != nil {
		return nil, err
	}
	parser, err := lpbus.NewParser(config.Format)
	if err != nil {
		return nil, err
	}

	d := &device{
		config:    config,
		desc:      desc,
		logger:    logger,
		factory:   factory,
		parser:    parser,
		release:   release,
		output:    config.Output,
		rate:      config.SamplingRate,
		streaming: true,
		poweredOn: time.Now().UTC(),
	}
	d.rxR, d.rxW = io.Pipe()
	d.txR, d.txW = io.Pipe()
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

func (d *device) start() {
	d.wg.Add(2)
	go d.stream()
	go d.serve()
}

// Read implements iosys.Interface.
func (d *device) Read(b []byte) (int, error) {
	return d.rxR.Read(b)
}

// Write implements iosys.Interface.
func (d *device) Write(b []byte) (int, error) {
	n, err := d.txW.Write(b)
	if err != nil {
		return n, iosys.NewRuntimeError("sim: write failed", zen.ErrorIoSendFailed, err)
	}
	return n, nil
}

// Close implements iosys.Interface. It powers the sensor down.
func (d *device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.cancel()
	_ = d.rxR.Close()
	_ = d.txW.Close()
	d.wg.Wait()
	d.release()

	d.logger.Debug("sensor powered down")
	return nil
}

// Desc implements iosys.Interface.
func (d *device) Desc() zen.SensorDesc {
	return d.desc
}

func (d *device) unplug() {
	d.cancel()
	_ = d.rxW.CloseWithError(errUnplugged)
	_ = d.txR.Close()
}

// send writes a frame to the host. Called with d.wmu held, so that a frame
// is always encoded with the configuration in effect when it is written.
func (d *device) send(function uint16, data []byte) error {
	frame, err := d.factory.MakeFrame(Address, function, data)
	if err != nil {
		return err
	}

	_, err = d.rxW.Write(frame)
	return err
}

func (d *device) period() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Second / time.Duration(d.rate)
}

// stream emits data frames at the sampling rate while streaming is on.
func (d *device) stream() {
	defer d.wg.Done()

	period := d.period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}

		if p := d.period(); p != period {
			period = p
			ticker.Reset(period)
		}

		if err := d.emit(&n); err != nil {
			d.streamError(err)
			return
		}
	}
}

// emit writes the data frames of one sample period.
func (d *device) emit(n *uint64) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()

	d.mu.Lock()
	streaming, output, rate := d.streaming, d.output, d.rate
	d.mu.Unlock()

	if !streaming {
		return nil
	}

	d.ticks += MaxSamplingRate / rate
	*n++

	if err := d.send(ig1.FunctionImuData, ig1.EncodeImu(d.imuSample(), output)); err != nil {
		return err
	}
	if d.config.Gnss && *n%uint64(max(1, rate/gnssRate)) == 0 {
		return d.send(ig1.FunctionGnssData, ig1.EncodeGnss(d.gnssSample()))
	}
	return nil
}

func (d *device) streamError(err error) {
	if errors.Is(err, io.ErrClosedPipe) || d.ctx.Err() != nil {
		return
	}
	d.logger.Warn("streaming stopped", slog.Any("error", err))
}

// serve answers commands written by the host.
func (d *device) serve() {
	defer d.wg.Done()

	buf := make([]byte, 256)
	for {
		n, err := d.txR.Read(buf)
		if err != nil {
			return
		}

		_, err = lpbus.Process(d.parser, buf[:n], d.handle)
		if err != nil {
			d.streamError(err)
			return
		}
	}
}

func (d *device) handle(f lpbus.Frame) error {
	data, err := f.Data()
	if err != nil {
		return err
	}

	d.logger.Debug("command received", slog.Int("function", int(f.Function)), slog.Int("length", len(data)))

	d.wmu.Lock()
	defer d.wmu.Unlock()

	d.mu.Lock()
	reply, function := d.execute(f.Function, data)
	d.mu.Unlock()

	return d.send(function, reply)
}

// execute applies a command and returns the reply payload and function.
// Called with d.mu held.
func (d *device) execute(function uint16, data []byte) ([]byte, uint16) {
	switch function {
	case ig1.FunctionGotoCommandMode:
		d.streaming = false
	case ig1.FunctionGotoStreamMode:
		d.streaming = true
	case ig1.FunctionGetSensorModel:
		return paddedString(d.config.Model), function
	case ig1.FunctionGetSerialNumber:
		return paddedString(d.config.SerialNumber), function
	case ig1.FunctionGetOutputConfig:
		return ig1.EncodeUint32(uint32(d.output)), function
	case ig1.FunctionGetSamplingRate:
		return ig1.EncodeUint32(d.rate), function
	case ig1.FunctionSetOutputConfig:
		v, err := ig1.DecodeUint32(data)
		if err != nil || ig1.OutputConfig(v).Validate() != nil {
			return nil, ig1.FunctionNack
		}
		d.output = ig1.OutputConfig(v)
	case ig1.FunctionSetSamplingRate:
		v, err := ig1.DecodeUint32(data)
		if err != nil || v == 0 || v > MaxSamplingRate {
			return nil, ig1.FunctionNack
		}
		d.rate = v
	default:
		return nil, ig1.FunctionNack
	}

	return nil, ig1.FunctionAck
}

func paddedString(s string) []byte {
	b := make([]byte, stringReplySize)
	copy(b, s)
	return b
}

// elapsed returns the sensor time in seconds.
func (d *device) elapsed() float64 {
	return float64(d.ticks) * ig1.TimestampResolution
}

// imuSample synthesizes a slow rocking motion while turning at 10 deg/s.
func (d *device) imuSample() zen.ImuData {
	t := d.elapsed()
	w := math.Pi // rocking angular frequency, rad/s

	roll := 5 * math.Sin(w*t)
	pitch := 3 * math.Cos(w*t)
	yaw := math.Mod(10*t+180, 360) - 180
	rates := [3]float32{
		float32(5 * w * math.Cos(w*t)),
		float32(-3 * w * math.Sin(w*t)),
		10,
	}

	rr, pr, yr := roll*math.Pi/180, pitch*math.Pi/180, yaw*math.Pi/180
	cr, sr := math.Cos(rr/2), math.Sin(rr/2)
	cp, sp := math.Cos(pr/2), math.Sin(pr/2)
	cy, sy := math.Cos(yr/2), math.Sin(yr/2)
	q := [4]float32{
		float32(cr*cp*cy + sr*sp*sy),
		float32(sr*cp*cy - cr*sp*sy),
		float32(cr*sp*cy + sr*cp*sy),
		float32(cr*cp*sy - sr*sp*cy),
	}

	acc := [3]float32{
		float32(math.Sin(pr)),
		float32(-math.Sin(rr) * math.Cos(pr)),
		float32(-math.Cos(rr) * math.Cos(pr)),
	}
	bias := [3]float32{0.1, -0.05, 0.02}

	s := zen.ImuData{
		FrameCount:  d.ticks,
		Timestamp:   t,
		A:           acc,
		ARaw:        [3]float32{acc[0] + 0.01, acc[1] - 0.01, acc[2] + 0.02},
		G1:          rates,
		G2:          rates,
		W:           rates,
		B:           [3]float32{float32(20 * math.Cos(yr)), float32(-20 * math.Sin(yr)), -40},
		R:           [3]float32{float32(roll), float32(pitch), float32(yaw)},
		Q:           q,
		LinAcc:      [3]float32{float32(0.01 * math.Sin(3*t)), float32(0.01 * math.Cos(3*t)), 0},
		Pressure:    float32(1013.25 - 0.05*math.Sin(t/10)),
		Altitude:    float32(120 + 0.5*math.Sin(t/10)),
		Temperature: float32(25 + 0.5*math.Sin(t/60)),
	}
	for i := range rates {
		s.G1Raw[i] = rates[i] + bias[i]
		s.G2Raw[i] = rates[i] - bias[i]
		s.G1BiasCalib[i] = rates[i]
		s.G2BiasCalib[i] = rates[i]
	}
	s.BRaw = s.B
	s.RotationM = zen.RotationFromQuaternion(q)

	return s
}

// gnssSample walks north-east at 1 m/s from the configured position.
func (d *device) gnssSample() zen.GnssData {
	t := d.elapsed()
	now := d.poweredOn.Add(time.Duration(t * float64(time.Second)))

	north := t / math.Sqrt2
	east := t / math.Sqrt2
	lat := d.config.Latitude + north/metersPerDegree

	return zen.GnssData{
		Timestamp:            t,
		Latitude:             lat,
		Longitude:            d.config.Longitude + east/(metersPerDegree*math.Cos(lat*math.Pi/180)),
		HorizontalAccuracy:   1.5,
		VerticalAccuracy:     2.5,
		Height:               120,
		Heading:              45,
		HeadingAccuracy:      1,
		Velocity:             1,
		VelocityAccuracy:     0.1,
		FixType:              zen.GnssFix3D,
		CarrierPhaseSolution: zen.CarrierPhaseNone,
		NumberSatellitesUsed: 12,
		Year:                 uint16(now.Year()),
		Month:                uint8(now.Month()),
		Day:                  uint8(now.Day()),
		Hour:                 uint8(now.Hour()),
		Minute:               uint8(now.Minute()),
		Second:               uint8(now.Second()),
		NanoSecondCorrection: int32(now.Nanosecond()),
	}
}
