package zen

import (
	"encoding/json"
	"fmt"
)

// EventType is the discriminant of an Event.
type EventType uint32

const (
	EventTypeNone                  EventType = 0
	EventTypeSensorFound           EventType = 1
	EventTypeSensorListingProgress EventType = 2
	EventTypeSensorDisconnected    EventType = 3
	EventTypeImu                   EventType = 20
	EventTypeGnss                  EventType = 40
)

var eventTypeNames = map[EventType]string{
	EventTypeNone:                  "none",
	EventTypeSensorFound:           "sensorFound",
	EventTypeSensorListingProgress: "sensorListingProgress",
	EventTypeSensorDisconnected:    "sensorDisconnected",
	EventTypeImu:                   "imu",
	EventTypeGnss:                  "gnss",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("eventType(%d)", uint32(t))
}

// Payload is the closed set of event payloads: ImuData, GnssData,
// SensorDisconnected, SensorDesc and SensorListingProgress.
type Payload interface {
	EventType() EventType

	isPayload()
}

func (ImuData) EventType() EventType               { return EventTypeImu }
func (GnssData) EventType() EventType              { return EventTypeGnss }
func (SensorDisconnected) EventType() EventType    { return EventTypeSensorDisconnected }
func (SensorDesc) EventType() EventType            { return EventTypeSensorFound }
func (SensorListingProgress) EventType() EventType { return EventTypeSensorListingProgress }

func (ImuData) isPayload()               {}
func (GnssData) isPayload()              {}
func (SensorDisconnected) isPayload()    {}
func (SensorDesc) isPayload()            {}
func (SensorListingProgress) isPayload() {}

// Variant constrains NewEvent and As to the payload value types. Pointers
// are not part of the set, so an event never shares memory with the code
// that built its payload.
type Variant interface {
	ImuData | GnssData | SensorDisconnected | SensorDesc | SensorListingProgress

	Payload
}

// Event is a read-only snapshot produced by the sensor runtime. The active
// payload is fixed at construction and its discriminant is derived from it.
// Events own their payload, so they can be kept for as long as needed.
type Event struct {
	sensor    SensorHandle
	component ComponentHandle
	payload   Payload
}

// NewEvent creates an event carrying payload. It is used by the packages
// producing events; consumers receive events from a client.
func NewEvent[P Variant](sensor SensorHandle, component ComponentHandle, payload P) Event {
	return Event{sensor: sensor, component: component, payload: payload}
}

// Type returns the discriminant of the event.
func (e Event) Type() EventType {
	if e.payload == nil {
		return EventTypeNone
	}
	return e.payload.EventType()
}

// Sensor returns the handle of the sensor that produced the event. Discovery
// events carry a zero handle.
func (e Event) Sensor() SensorHandle { return e.sensor }

// Component returns the handle of the sensor component that produced the
// event, zero for sensor-level and discovery events.
func (e Event) Component() ComponentHandle { return e.component }

// Payload returns the active payload, nil for the zero Event. Switch on its
// concrete type to read it without a discriminant check:
//
//	switch p := ev.Payload().(type) {
//	case zen.ImuData:
//	case zen.SensorDesc:
//	}
func (e Event) Payload() Payload { return e.payload }

// ImuData returns the payload of an EventTypeImu event.
func (e Event) ImuData() (ImuData, error) { return As[ImuData](e) }

// GnssData returns the payload of an EventTypeGnss event.
func (e Event) GnssData() (GnssData, error) { return As[GnssData](e) }

// SensorDisconnected returns the payload of an EventTypeSensorDisconnected event.
func (e Event) SensorDisconnected() (SensorDisconnected, error) { return As[SensorDisconnected](e) }

// SensorFound returns the payload of an EventTypeSensorFound event.
func (e Event) SensorFound() (SensorDesc, error) { return As[SensorDesc](e) }

// SensorListingProgress returns the payload of an EventTypeSensorListingProgress event.
func (e Event) SensorListingProgress() (SensorListingProgress, error) {
	return As[SensorListingProgress](e)
}

// As returns the payload of e as T. It fails with ErrInvalidVariant when the
// discriminant of e does not select T.
func As[T Variant](e Event) (T, error) {
	if p, ok := e.payload.(T); ok {
		return p, nil
	}

	var zero T
	return zero, fmt.Errorf("%w: requested %s, event is %s", ErrInvalidVariant, zero.EventType(), e.Type())
}

func (e Event) String() string {
	return fmt.Sprintf("%s(sensor=%d, component=%d)", e.Type(), e.sensor, e.component)
}

type eventJSON struct {
	Type      string          `json:"type"`
	Sensor    SensorHandle    `json:"sensor,omitempty"`
	Component ComponentHandle `json:"component,omitempty"`
	Data      Payload         `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Type:      e.Type().String(),
		Sensor:    e.sensor,
		Component: e.component,
		Data:      e.payload,
	})
}
