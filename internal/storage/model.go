package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/zen-sensors/internal/zen"
)

// Session describes a single sensor recording.
type Session struct {
	ID           int64
	UUID         uuid.UUID
	StartTime    time.Time
	IoType       string
	SensorName   string
	SerialNumber string
	Identifier   string
	Config       *string
}

// ImuRecord is an IMU sample together with the host time it was received at.
type ImuRecord struct {
	ReceivedAt time.Time
	Data       zen.ImuData
}

// GnssRecord is a GNSS sample together with the host time it was received at.
type GnssRecord struct {
	ReceivedAt time.Time
	Data       zen.GnssData
}

// EventRecord is a logged sensor event. Data holds the JSON encoding of the event.
type EventRecord struct {
	ID         int64
	ReceivedAt time.Time
	Type       zen.EventType
	Sensor     zen.SensorHandle
	Data       json.RawMessage
}

// Record is the constraint satisfied by the sample types a Reader yields.
type Record interface {
	ImuRecord | GnssRecord
}
