package serial

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tarm/serial"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaudRate     = 921600
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultProbeTimeout = 500 * time.Millisecond

	// ParityNone is the default parity
	ParityNone  Parity = "none"
	ParityOdd   Parity = "odd"
	ParityEven  Parity = "even"
	ParityMark  Parity = "mark"
	ParitySpace Parity = "space"

	// StopBits1 is the default number of stop bits
	StopBits1     StopBits = "1"
	StopBits1Half StopBits = "1.5"
	StopBits2     StopBits = "2"
)

var (
	validParities = map[Parity]serial.Parity{
		ParityNone:  serial.ParityNone,
		ParityOdd:   serial.ParityOdd,
		ParityEven:  serial.ParityEven,
		ParityMark:  serial.ParityMark,
		ParitySpace: serial.ParitySpace,
	}

	validStopBits = map[StopBits]serial.StopBits{
		StopBits1:     serial.Stop1,
		StopBits1Half: serial.Stop1Half,
		StopBits2:     serial.Stop2,
	}

	validBaudRates = map[uint32]struct{}{
		9600:    {},
		19200:   {},
		38400:   {},
		57600:   {},
		115200:  {},
		230400:  {},
		460800:  {},
		921600:  {},
		1000000: {},
		2000000: {},
	}
)

type Parity string

func (p Parity) String() string {
	return string(p)
}

type StopBits string

func (s StopBits) String() string {
	return string(s)
}

type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("serial.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("serial.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d TimeDuration) Validate() error {
	duration := time.Duration(d)

	if duration < 0 {
		return fmt.Errorf("serial.TimeDuration: must not be negative: %s", duration)
	}
	if duration > 0 && duration < time.Millisecond {
		return fmt.Errorf("serial.TimeDuration: must be at least 1 millisecond: %s given", duration)
	}

	return nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// Duration returns d, or fallback when d is zero.
func (d TimeDuration) Duration(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

// Config is the serial IO system configuration
type Config struct {
	BaudRate    uint32       `yaml:"baudRate" json:"baudRate"`       // default baud rate for sensors obtained without one (default: 921600)
	ReadTimeout TimeDuration `yaml:"readTimeout" json:"readTimeout"` // read timeout of an open port (default: 100ms)
	DataBits    uint8        `yaml:"dataBits" json:"dataBits"`       // 5 to 8 (default: 8)
	Parity      Parity       `yaml:"parity" json:"parity"`           // none, odd, even, mark, space (default: none)
	StopBits    StopBits     `yaml:"stopBits" json:"stopBits"`       // 1, 1.5, 2 (default: 1)

	// Discovery
	Patterns     []string     `yaml:"patterns" json:"patterns"`         // device path globs used when device enumeration is unavailable
	Probe        bool         `yaml:"probe" json:"probe"`               // list only ports that deliver data within ProbeTimeout
	ProbeTimeout TimeDuration `yaml:"probeTimeout" json:"probeTimeout"` // (default: 500ms)
}

func (c *Config) Validate() error {
	if c.BaudRate != 0 {
		if _, ok := validBaudRates[c.BaudRate]; !ok {
			return fmt.Errorf("serial.Config: unsupported baud rate %d", c.BaudRate)
		}
	}
	if c.DataBits != 0 && (c.DataBits < 5 || c.DataBits > 8) {
		return fmt.Errorf("serial.Config: data bits must be between 5 and 8, %d given", c.DataBits)
	}
	if c.Parity != "" {
		if _, ok := validParities[c.Parity]; !ok {
			return fmt.Errorf("serial.Config: invalid parity '%s'", c.Parity)
		}
	}
	if c.StopBits != "" {
		if _, ok := validStopBits[c.StopBits]; !ok {
			return fmt.Errorf("serial.Config: invalid stop bits '%s'", c.StopBits)
		}
	}
	if err := c.ReadTimeout.Validate(); err != nil {
		return fmt.Errorf("serial.Config: read timeout: %w", err)
	}
	if err := c.ProbeTimeout.Validate(); err != nil {
		return fmt.Errorf("serial.Config: probe timeout: %w", err)
	}

	return nil
}

// portConfig returns the port settings to open name with.
func (c *Config) portConfig(name string, baudRate uint32) *serial.Config {
	if baudRate == 0 {
		baudRate = c.defaultBaudRate()
	}

	pc := &serial.Config{
		Name:        name,
		Baud:        int(baudRate),
		ReadTimeout: c.ReadTimeout.Duration(DefaultReadTimeout),
		Size:        c.DataBits,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	if p, ok := validParities[c.Parity]; ok {
		pc.Parity = p
	}
	if s, ok := validStopBits[c.StopBits]; ok {
		pc.StopBits = s
	}
	if pc.Size == 0 {
		pc.Size = serial.DefaultSize
	}

	return pc
}

func (c *Config) defaultBaudRate() uint32 {
	if c.BaudRate == 0 {
		return DefaultBaudRate
	}
	return c.BaudRate
}
