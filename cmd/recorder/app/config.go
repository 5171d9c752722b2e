package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/iosys/serial"
	"github.com/roman-kulish/zen-sensors/internal/iosys/sim"
	"github.com/roman-kulish/zen-sensors/internal/lpbus"
)

const (
	LogFormatText = "text"
	LogFormatTint = "tint"

	defaultStatusInterval = 30 * time.Second
	defaultMaxBatchSize   = 500
	defaultBufferSize     = 1000
)

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Sensors  []SensorConfig `yaml:"sensors"`
	Serial   *serial.Config `yaml:"serial"` // nil disables the serial IO system
	Sim      *sim.Config    `yaml:"sim"`    // nil disables simulated sensors
	Storage  StorageConfig  `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel       slog.Level          `yaml:"logLevel"`
	LogFormat      string              `yaml:"logFormat"`      // text or tint (default: text)
	RescanSchedule string              `yaml:"rescanSchedule"` // cron spec for rediscovery, e.g. "@every 1m"; empty disables
	StatusInterval serial.TimeDuration `yaml:"statusInterval"` // (default: 30s)
	QueueSize      int                 `yaml:"queueSize"`      // client event queue capacity
	AutoObtain     bool                `yaml:"autoObtain"`     // record every discovered sensor
}

// SensorConfig represents a single sensor to record
type SensorConfig struct {
	Name         string           `yaml:"name"`   // sensor name, identifier or serial number
	IoType       string           `yaml:"ioType"` // serial or sim
	Enabled      bool             `yaml:"enabled"`
	BaudRate     uint32           `yaml:"baudRate"`
	Format       lpbus.Format     `yaml:"format"`
	Output       ig1.OutputConfig `yaml:"output"`       // written to the sensor when set
	SamplingRate uint32           `yaml:"samplingRate"` // Hz, written to the sensor when set
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"` // samples per insert statement (default: 500)
	BufferSize    int    `yaml:"bufferSize"`   // IMU samples reordered before storing (default: 1000)
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Serial == nil && c.Sim == nil {
		return fmt.Errorf("no IO system configured")
	}
	if c.Serial != nil {
		if err := c.Serial.Validate(); err != nil {
			return err
		}
	}
	if c.Sim != nil {
		if err := c.Sim.Validate(); err != nil {
			return err
		}
	}

	if err := c.Settings.Validate(); err != nil {
		return err
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	var enabled int
	for i := range c.Sensors {
		if err := c.Sensors[i].Validate(); err != nil {
			return fmt.Errorf("sensor %d: %w", i, err)
		}
		if c.Sensors[i].Enabled {
			enabled++
		}
	}
	if enabled == 0 && !c.Settings.AutoObtain {
		return fmt.Errorf("no sensors enabled and autoObtain is off")
	}

	return nil
}

func (s *Settings) Validate() error {
	switch s.LogFormat {
	case "", LogFormatText, LogFormatTint:
	default:
		return fmt.Errorf("settings: unknown log format '%s'", s.LogFormat)
	}
	if s.RescanSchedule != "" {
		if _, err := cron.ParseStandard(s.RescanSchedule); err != nil {
			return fmt.Errorf("settings: invalid rescan schedule: %w", err)
		}
	}
	if err := s.StatusInterval.Validate(); err != nil {
		return fmt.Errorf("settings: status interval: %w", err)
	}
	if s.QueueSize < 0 {
		return fmt.Errorf("settings: queue size must not be negative")
	}
	return nil
}

func (s *SensorConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.IoType {
	case serial.IoType, sim.IoType:
	default:
		return fmt.Errorf("unknown IO type '%s'", s.IoType)
	}
	switch s.Format {
	case "", lpbus.FormatLP, lpbus.FormatASCII:
	default:
		return fmt.Errorf("unsupported format '%s'", s.Format)
	}
	if s.Output != 0 {
		if err := s.Output.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	if s.MaxBatchSize < 0 {
		return fmt.Errorf("storage: max batch size must not be negative")
	}
	if s.BufferSize < 0 {
		return fmt.Errorf("storage: buffer size must not be negative")
	}
	return nil
}

func (s *StorageConfig) maxBatchSize() int {
	if s.MaxBatchSize == 0 {
		return defaultMaxBatchSize
	}
	return s.MaxBatchSize
}

func (s *StorageConfig) bufferSize() int {
	if s.BufferSize == 0 {
		return defaultBufferSize
	}
	return s.BufferSize
}
