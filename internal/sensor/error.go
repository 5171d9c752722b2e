package sensor

import "errors"

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("sensor: too many consecutive parse errors")

	// ErrAlreadyRunning is returned by Start on a running sensor
	ErrAlreadyRunning = errors.New("sensor: already running")

	// ErrNotRunning is returned by commands issued before Start, as replies are
	// received by the read loop
	ErrNotRunning = errors.New("sensor: not running")
)

// ConfigError reports an invalid sensor option.
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}
