package sensor

import (
	"github.com/roman-kulish/zen-sensors/internal/ig1"
	"github.com/roman-kulish/zen-sensors/internal/zen"
)

const (
	ComponentImu  zen.ComponentHandle = 1
	ComponentGnss zen.ComponentHandle = 2
)

// Component is a data source within a sensor. Each component consumes the
// frames of one function code and turns them into events.
type Component struct {
	handle   zen.ComponentHandle
	name     string
	function uint16
	decode   func(sensor zen.SensorHandle, data []byte, output ig1.OutputConfig) (zen.Event, error)
}

func (c Component) Handle() zen.ComponentHandle {
	return c.handle
}

func (c Component) Name() string {
	return c.name
}

// Function returns the function code of the frames the component consumes.
func (c Component) Function() uint16 {
	return c.function
}

var components = []Component{
	{
		handle:   ComponentImu,
		name:     "imu",
		function: ig1.FunctionImuData,
		decode:   eventDecoder(ComponentImu, ig1.DecodeImu),
	},
	{
		handle:   ComponentGnss,
		name:     "gnss",
		function: ig1.FunctionGnssData,
		decode: eventDecoder(ComponentGnss, func(data []byte, _ ig1.OutputConfig) (zen.GnssData, error) {
			return ig1.DecodeGnss(data)
		}),
	},
}

// eventDecoder wraps a payload decoder of the component handle.
func eventDecoder[P zen.Variant](handle zen.ComponentHandle, decode func([]byte, ig1.OutputConfig) (P, error)) func(zen.SensorHandle, []byte, ig1.OutputConfig) (zen.Event, error) {
	return func(sensor zen.SensorHandle, data []byte, output ig1.OutputConfig) (zen.Event, error) {
		p, err := decode(data, output)
		if err != nil {
			return zen.Event{}, err
		}
		return zen.NewEvent(sensor, handle, p), nil
	}
}

func componentFor(function uint16) (Component, bool) {
	for _, c := range components {
		if c.function == function {
			return c, true
		}
	}
	return Component{}, false
}
