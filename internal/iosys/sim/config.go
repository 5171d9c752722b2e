package sim

import (
	"fmt"

	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/lpbus"
)

const (
	DefaultModel        = "LPMS-IG1-SIM"
	DefaultSamplingRate = 100
	MaxSamplingRate     = 500 // one sample per frame counter tick
)

// SensorConfig describes one simulated sensor.
type SensorConfig struct {
	Name         string           `yaml:"name" json:"name"`
	SerialNumber string           `yaml:"serialNumber" json:"serialNumber"`
	Model        string           `yaml:"model" json:"model"`
	SamplingRate uint32           `yaml:"samplingRate" json:"samplingRate"` // Hz (default: 100)
	Output       ig1.OutputConfig `yaml:"output" json:"output"`             // (default: ig1.DefaultOutputConfig)
	Format       lpbus.Format     `yaml:"format" json:"format"`             // lp or ascii (default: lp)
	Gnss         bool             `yaml:"gnss" json:"gnss"`                 // stream GNSS at 10 Hz as well
	Latitude     float64          `yaml:"latitude" json:"latitude"`         // starting position
	Longitude    float64          `yaml:"longitude" json:"longitude"`
}

func (c *SensorConfig) withDefaults() SensorConfig {
	sc := *c
	if sc.Model == "" {
		sc.Model = DefaultModel
	}
	if sc.SerialNumber == "" {
		sc.SerialNumber = "SIM-" + sc.Name
	}
	if sc.SamplingRate == 0 {
		sc.SamplingRate = DefaultSamplingRate
	}
	if sc.Output == 0 {
		sc.Output = ig1.DefaultOutputConfig
	}
	if sc.Format == "" {
		sc.Format = lpbus.FormatLP
	}
	return sc
}

func (c *SensorConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.SamplingRate > MaxSamplingRate {
		return fmt.Errorf("sampling rate must not exceed %d Hz, %d given", MaxSamplingRate, c.SamplingRate)
	}
	if c.Output != 0 {
		if err := c.Output.Validate(); err != nil {
			return err
		}
	}
	if c.Format != "" {
		if _, err := lpbus.NewFactory(c.Format); err != nil {
			return err
		}
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("position %f,%f out of range", c.Latitude, c.Longitude)
	}
	return nil
}

// Config is the simulated IO system configuration
type Config struct {
	Sensors []SensorConfig `yaml:"sensors" json:"sensors"`
}

func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Sensors))

	for i := range c.Sensors {
		s := &c.Sensors[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sim.Config: sensor #%d: %w", i, err)
		}
		if _, ok := names[s.Name]; ok {
			return fmt.Errorf("sim.Config: duplicate sensor name '%s'", s.Name)
		}
		names[s.Name] = struct{}{}
	}

	return nil
}
