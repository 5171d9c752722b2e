//go:build windows

package serial

import (
	"errors"
	"fmt"

	"github.com/tarm/serial"
)

var defaultPatterns []string

// enumeratePorts tries COM1 to COM256 and returns the ones that open.
func enumeratePorts() ([]portInfo, error) {
	var ports []portInfo

	for i := 1; i <= 256; i++ {
		name := fmt.Sprintf("COM%d", i)
		p, err := serial.OpenPort(&serial.Config{Name: name, Baud: DefaultBaudRate, ReadTimeout: DefaultReadTimeout})
		if err != nil {
			continue
		}
		_ = p.Close()
		ports = append(ports, portInfo{path: name})
	}

	if len(ports) == 0 {
		return nil, errors.New("no COM ports available")
	}
	return ports, nil
}
