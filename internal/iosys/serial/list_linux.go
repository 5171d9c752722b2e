//go:build linux

package serial

import (
	"errors"

	"github.com/jochenvg/go-udev"
)

var defaultPatterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}

// enumeratePorts lists USB serial adapters known to udev.
func enumeratePorts() ([]portInfo, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()

	if err := e.AddMatchSubsystem("tty"); err != nil {
		return nil, err
	}
	if err := e.AddMatchProperty("ID_BUS", "usb"); err != nil {
		return nil, err
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return nil, err
	}

	devices, err := e.Devices()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, errors.New("udev: no usb tty devices")
	}

	ports := make([]portInfo, 0, len(devices))
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		ports = append(ports, portInfo{
			path:         node,
			model:        d.PropertyValue("ID_MODEL"),
			vendor:       d.PropertyValue("ID_VENDOR"),
			serialNumber: d.PropertyValue("ID_SERIAL_SHORT"),
		})
	}

	return ports, nil
}
