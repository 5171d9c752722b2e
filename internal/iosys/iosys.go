// Package iosys defines the IO systems sensors are discovered on and
// connected through.
package iosys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// ErrUnknownIoType is returned for IO types without a registered system.
var ErrUnknownIoType = errors.New("iosys: unknown IO type")

// Interface is an open byte stream to a single sensor.
type Interface interface {
	io.ReadWriteCloser

	// Desc returns the descriptor the interface was opened with.
	Desc() zen.SensorDesc
}

// System discovers sensors reachable over one kind of IO and opens
// interfaces to them.
type System interface {
	// Type returns the IO type name, e.g. "serial".
	Type() string

	// DefaultBaudRate is used when a sensor is obtained without a baud rate.
	DefaultBaudRate() uint32

	// List returns the sensors currently available on this system.
	List(ctx context.Context) ([]zen.SensorDesc, error)

	// Open connects to the sensor described by desc.
	Open(ctx context.Context, desc zen.SensorDesc) (Interface, error)
}

// Registry is an ordered set of IO systems.
type Registry struct {
	mu      sync.RWMutex
	systems []System
	byType  map[string]System
}

// NewRegistry creates a registry holding systems in the given order.
func NewRegistry(systems ...System) (*Registry, error) {
	r := &Registry{byType: make(map[string]System)}
	for _, s := range systems {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a system. IO types must be unique.
func (r *Registry) Register(s System) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byType[s.Type()]; ok {
		return NewConfigError(fmt.Sprintf("iosys: IO type '%s' already registered", s.Type()))
	}

	r.systems = append(r.systems, s)
	r.byType[s.Type()] = s
	return nil
}

// Get returns the system for ioType.
func (r *Registry) Get(ioType string) (System, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byType[ioType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIoType, ioType)
	}
	return s, nil
}

// Systems returns the registered systems in registration order.
func (r *Registry) Systems() []System {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]System(nil), r.systems...)
}
