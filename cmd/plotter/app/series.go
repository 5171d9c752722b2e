package app

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roman-kulish/zen-sensors/internal/storage"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

const (
	ChannelAcc         Channel = "acc"
	ChannelGyro0       Channel = "gyro0"
	ChannelGyro1       Channel = "gyro1"
	ChannelMag         Channel = "mag"
	ChannelAngVel      Channel = "angvel"
	ChannelEuler       Channel = "euler"
	ChannelQuaternion  Channel = "quaternion"
	ChannelLinAcc      Channel = "linacc"
	ChannelPressure    Channel = "pressure"
	ChannelAltitude    Channel = "altitude"
	ChannelTemperature Channel = "temperature"
)

// Channel names a group of IMU values plotted together.
type Channel string

type channelSpec struct {
	title  string
	unit   string
	names  []string
	values func(d *zen.ImuData) []float32
}

var xyz = []string{"x", "y", "z"}

var channels = map[Channel]channelSpec{
	ChannelAcc:         {"Acceleration", "g", xyz, func(d *zen.ImuData) []float32 { return d.A[:] }},
	ChannelGyro0:       {"Gyroscope 0", "deg/s", xyz, func(d *zen.ImuData) []float32 { return d.G1[:] }},
	ChannelGyro1:       {"Gyroscope 1", "deg/s", xyz, func(d *zen.ImuData) []float32 { return d.G2[:] }},
	ChannelMag:         {"Magnetometer", "uT", xyz, func(d *zen.ImuData) []float32 { return d.B[:] }},
	ChannelAngVel:      {"Angular velocity", "deg/s", xyz, func(d *zen.ImuData) []float32 { return d.W[:] }},
	ChannelEuler:       {"Euler angles", "deg", []string{"roll", "pitch", "yaw"}, func(d *zen.ImuData) []float32 { return d.R[:] }},
	ChannelQuaternion:  {"Quaternion", "", []string{"w", "x", "y", "z"}, func(d *zen.ImuData) []float32 { return d.Q[:] }},
	ChannelLinAcc:      {"Linear acceleration", "g", xyz, func(d *zen.ImuData) []float32 { return d.LinAcc[:] }},
	ChannelPressure:    {"Pressure", "mBar", []string{"pressure"}, func(d *zen.ImuData) []float32 { return []float32{d.Pressure} }},
	ChannelAltitude:    {"Altitude", "m", []string{"altitude"}, func(d *zen.ImuData) []float32 { return []float32{d.Altitude} }},
	ChannelTemperature: {"Temperature", "C", []string{"temperature"}, func(d *zen.ImuData) []float32 { return []float32{d.Temperature} }},
}

func (c Channel) Validate() error {
	if _, ok := channels[c]; !ok {
		return fmt.Errorf("invalid channel: %s", c)
	}
	return nil
}

func channelNames() string {
	names := make([]string, 0, len(channels))
	for c := range channels {
		names = append(names, string(c))
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// Series is one plotted line.
type Series struct {
	Name   string
	Values []float32
}

// SeriesData collects the samples of one channel of a recording session.
type SeriesData struct {
	Channel Channel
	Title   string
	Unit    string

	Session *storage.Session

	Series     []Series
	Timestamps []time.Time

	TimestampStart time.Time
	TimestampEnd   time.Time
	FrameFirst     uint32
	FrameLast      uint32

	BoundsTracker *ValueBounds

	values func(d *zen.ImuData) []float32
}

func NewSeriesData(channel Channel, bounds *ValueBounds) (*SeriesData, error) {
	spec, ok := channels[channel]
	if !ok {
		return nil, fmt.Errorf("invalid channel: %s", channel)
	}

	series := make([]Series, len(spec.names))
	for i, name := range spec.names {
		series[i].Name = name
	}

	return &SeriesData{
		Channel:       channel,
		Title:         spec.title,
		Unit:          spec.unit,
		Series:        series,
		BoundsTracker: bounds,
		values:        spec.values,
	}, nil
}

// Update appends a sample. Samples are expected in reception order.
func (s *SeriesData) Update(rec *storage.ImuRecord) {
	if rec == nil {
		return
	}

	if len(s.Timestamps) == 0 {
		s.TimestampStart = rec.ReceivedAt
		s.FrameFirst = rec.Data.FrameCount
	}
	s.TimestampEnd = rec.ReceivedAt
	s.FrameLast = rec.Data.FrameCount
	s.Timestamps = append(s.Timestamps, rec.ReceivedAt)

	for i, v := range s.values(&rec.Data) {
		s.Series[i].Values = append(s.Series[i].Values, v)
		s.BoundsTracker.Update(float64(v))
	}
}

// Len returns the number of samples.
func (s *SeriesData) Len() int {
	return len(s.Timestamps)
}

// Duration returns the time span covered by the samples.
func (s *SeriesData) Duration() time.Duration {
	return s.TimestampEnd.Sub(s.TimestampStart)
}
