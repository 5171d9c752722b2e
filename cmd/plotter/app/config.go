package app

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"

	defaultWidth  = 1600
	defaultHeight = 600
	minDimension  = 100
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Channel       Channel
	Width         int
	Height        int
	StartTime     *time.Time
	EndTime       *time.Time
	FirstFrame    *uint32
	LastFrame     *uint32
	MinValue      *float64
	MaxValue      *float64
	TimeZone      *time.Location
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Channel:  ChannelAcc,
		Width:    defaultWidth,
		Height:   defaultHeight,
		TimeZone: time.Local,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, channel, timeZone, startTime, endTime string
	var firstFrame, lastFrame uint
	var minValue, maxValue float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&channel, "channel", string(ChannelAcc), "IMU channel to plot. ["+channelNames()+"]")
	fs.IntVar(&c.Width, "width", defaultWidth, "Width of the plot area in pixels")
	fs.IntVar(&c.Height, "height", defaultHeight, "Height of the plot area in pixels")
	fs.StringVar(&timeZone, "tz", "Local", "Time zone of the time scale and of -start/-end")
	fs.StringVar(&startTime, "start", "", "Plot samples received at or after this time (format 2006-01-02 15:04:05)")
	fs.StringVar(&endTime, "end", "", "Plot samples received at or before this time (format 2006-01-02 15:04:05)")
	fs.UintVar(&firstFrame, "first-frame", 0, "First sensor frame to plot")
	fs.UintVar(&lastFrame, "last-frame", 0, "Last sensor frame to plot")
	fs.Float64Var(&minValue, "min-value", 0, "Define a manual bottom of the value scale")
	fs.Float64Var(&maxValue, "max-value", 0, "Define a manual top of the value scale")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and value scales")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)
	c.Channel = Channel(strings.ToLower(channel))

	var err error
	if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
		return nil, fmt.Errorf("invalid time zone: %w", err)
	}

	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "start":
			c.StartTime, parseErr = parseTime(startTime, c.TimeZone, parseErr)
		case "end":
			c.EndTime, parseErr = parseTime(endTime, c.TimeZone, parseErr)
		case "first-frame":
			c.FirstFrame, parseErr = frameNumber(firstFrame, parseErr)
		case "last-frame":
			c.LastFrame, parseErr = frameNumber(lastFrame, parseErr)
		case "min-value":
			c.MinValue = &minValue
		case "max-value":
			c.MaxValue = &maxValue
		}
	})

	switch {
	case parseErr != nil:
		err = parseErr
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.Width < minDimension || c.Height < minDimension:
		err = fmt.Errorf("plot area must be at least %dx%d pixels", minDimension, minDimension)
	case c.StartTime != nil && c.EndTime != nil && c.EndTime.Before(*c.StartTime):
		err = errors.New("end time is before start time")
	case c.FirstFrame != nil && c.LastFrame != nil && *c.LastFrame < *c.FirstFrame:
		err = errors.New("last frame is before first frame")
	case c.MinValue != nil && c.MaxValue != nil && *c.MaxValue <= *c.MinValue:
		err = errors.New("max value must be greater than min value")
	default:
		if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		} else {
			err = c.Channel.Validate()
		}
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

// parseTime keeps the first error seen while visiting flags.
func parseTime(value string, loc *time.Location, prevErr error) (*time.Time, error) {
	if prevErr != nil {
		return nil, prevErr
	}

	t, err := time.ParseInLocation(time.DateTime, value, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid time '%s': %w", value, err)
	}
	return &t, nil
}

func frameNumber(value uint, prevErr error) (*uint32, error) {
	if prevErr != nil {
		return nil, prevErr
	}
	if value > math.MaxUint32 {
		return nil, fmt.Errorf("frame number %d is out of range", value)
	}

	frame := uint32(value)
	return &frame, nil
}
