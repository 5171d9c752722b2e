package iosys

import "github.com/roman-kulish/zen-sensors/internal/zen"

// ConfigError reports an invalid IO system configuration.
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// RuntimeError reports a failure of an IO interface. It carries the sensor
// error code matching the failure, so callers can report it in a
// SensorDisconnected event.
type RuntimeError struct {
	msg  string
	code zen.Error
	err  error
}

func NewRuntimeError(msg string, code zen.Error, err error) *RuntimeError {
	return &RuntimeError{msg: msg, code: code, err: err}
}

func (e *RuntimeError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Code returns the sensor error code of the failure.
func (e *RuntimeError) Code() zen.Error {
	return e.code
}

// Unwrap exposes both the cause and the error code to errors.Is and errors.As.
func (e *RuntimeError) Unwrap() []error {
	if e.err != nil {
		return []error{e.err, e.code}
	}
	return []error{e.code}
}
