//go:build !linux && !windows

package serial

import "errors"

var defaultPatterns = []string{"/dev/tty.usbserial*", "/dev/tty.usbmodem*", "/dev/tty.SLAB_USBtoUART*"}

func enumeratePorts() ([]portInfo, error) {
	return nil, errors.New("device enumeration is not supported on this platform")
}
