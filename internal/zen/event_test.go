package zen

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func testEvents() []Event {
	return []Event{
		NewEvent(1, 1, ImuData{Timestamp: 0.5, FrameCount: 250, A: [3]float32{0, 0, -1}}),
		NewEvent(1, 2, GnssData{Latitude: 52.52, Longitude: 13.40, FixType: GnssFix3D}),
		NewEvent(1, 0, SensorDisconnected{Error: ErrorIoReadFailed}),
		NewEvent(0, 0, SensorDesc{Name: "LPMSIG1", SerialNumber: "ig1-0001", IoType: "serial", Identifier: "/dev/ttyUSB0", BaudRate: 921600}),
		NewEvent(0, 0, SensorListingProgress{Progress: 0.5}),
	}
}

// readAll tries every accessor and reports which of them succeeded.
func readAll(e Event) map[EventType]error {
	res := make(map[EventType]error)
	_, res[EventTypeImu] = e.ImuData()
	_, res[EventTypeGnss] = e.GnssData()
	_, res[EventTypeSensorDisconnected] = e.SensorDisconnected()
	_, res[EventTypeSensorFound] = e.SensorFound()
	_, res[EventTypeSensorListingProgress] = e.SensorListingProgress()
	return res
}

func TestEventExactlyOneReadablePayload(t *testing.T) {
	for _, e := range testEvents() {
		t.Run(e.Type().String(), func(t *testing.T) {
			readable := 0
			for kind, err := range readAll(e) {
				switch {
				case kind == e.Type():
					if err != nil {
						t.Errorf("reading matching payload %s: %v", kind, err)
					}
					readable++
				case !errors.Is(err, ErrInvalidVariant):
					t.Errorf("reading %s from %s event: got %v, want ErrInvalidVariant", kind, e.Type(), err)
				}
			}
			if readable != 1 {
				t.Errorf("readable payloads = %d, want 1", readable)
			}
		})
	}
}

func TestEventMatchingPayloadNotEmpty(t *testing.T) {
	for _, e := range testEvents() {
		if e.Payload() == nil {
			t.Fatalf("%s event has no payload", e.Type())
		}

		var empty bool
		switch p := e.Payload().(type) {
		case ImuData:
			empty = p == ImuData{}
		case GnssData:
			empty = p == GnssData{}
		case SensorDisconnected:
			empty = p == SensorDisconnected{}
		case SensorDesc:
			empty = p == SensorDesc{}
		case SensorListingProgress:
			empty = p == SensorListingProgress{}
		default:
			t.Fatalf("unexpected payload type %T", p)
		}
		if empty {
			t.Errorf("%s event carries an empty payload", e.Type())
		}
	}
}

func TestSensorFoundRoundTrip(t *testing.T) {
	desc := SensorDesc{
		Name:         "LPMS-IG1 RS232",
		SerialNumber: "ig1232000530",
		IoType:       "serial",
		Identifier:   "/dev/ttyUSB1",
		BaudRate:     921600,
	}

	e := NewEvent(0, 0, desc)
	if e.Type() != EventTypeSensorFound {
		t.Fatalf("Type() = %s, want %s", e.Type(), EventTypeSensorFound)
	}

	got, err := e.SensorFound()
	if err != nil {
		t.Fatalf("SensorFound() failed: %v", err)
	}
	if got != desc {
		t.Errorf("SensorFound() = %+v, want %+v", got, desc)
	}

	generic, err := As[SensorDesc](e)
	if err != nil {
		t.Fatalf("As[SensorDesc]() failed: %v", err)
	}
	if generic != desc {
		t.Errorf("As[SensorDesc]() = %+v, want %+v", generic, desc)
	}
}

func TestEventPayloadIsCopy(t *testing.T) {
	e := NewEvent(3, 1, ImuData{A: [3]float32{1, 2, 3}})

	first, err := e.ImuData()
	if err != nil {
		t.Fatalf("ImuData() failed: %v", err)
	}
	first.A[0] = 100

	second, err := e.ImuData()
	if err != nil {
		t.Fatalf("ImuData() failed: %v", err)
	}
	if second.A[0] != 1 {
		t.Errorf("event payload was mutated through a copy: A[0] = %v", second.A[0])
	}
}

func TestZeroEvent(t *testing.T) {
	var e Event

	if e.Type() != EventTypeNone {
		t.Errorf("Type() = %s, want %s", e.Type(), EventTypeNone)
	}
	for kind, err := range readAll(e) {
		if !errors.Is(err, ErrInvalidVariant) {
			t.Errorf("reading %s from zero event: got %v, want ErrInvalidVariant", kind, err)
		}
	}
	if _, err := As[ImuData](e); !errors.Is(err, ErrInvalidVariant) {
		t.Errorf("As[ImuData]() on zero event: got %v, want ErrInvalidVariant", err)
	}
}

func TestEventTypeMatchesPayload(t *testing.T) {
	for _, e := range testEvents() {
		p := e.Payload()
		if p == nil {
			t.Fatalf("%s: Payload() = nil", e)
		}
		if kind := reflect.TypeOf(p).Kind(); kind != reflect.Struct {
			t.Errorf("%s: payload is a %s, want a struct value", e, kind)
		}
		if e.Type() != p.EventType() {
			t.Errorf("Type() = %s, payload is %s", e.Type(), p.EventType())
		}
		if err := readAll(e)[e.Type()]; err != nil {
			t.Errorf("reading %s failed: %v", e.Type(), err)
		}
	}
}

func TestEventDoesNotAliasProducer(t *testing.T) {
	desc := SensorDesc{Name: "LPMSIG1", Identifier: "/dev/ttyUSB0"}
	imu := ImuData{A: [3]float32{1, 2, 3}}

	found := NewEvent(0, 0, desc)
	data := NewEvent(1, 1, imu)

	desc.Name = "changed"
	imu.A[0] = 100

	gotDesc, err := found.SensorFound()
	if err != nil {
		t.Fatalf("SensorFound() failed: %v", err)
	}
	if gotDesc.Name != "LPMSIG1" {
		t.Errorf("SensorFound().Name = %q after producer change, want %q", gotDesc.Name, "LPMSIG1")
	}

	gotImu, err := data.ImuData()
	if err != nil {
		t.Fatalf("ImuData() failed: %v", err)
	}
	if gotImu.A[0] != 1 {
		t.Errorf("ImuData().A[0] = %v after producer change, want 1", gotImu.A[0])
	}
}

func TestEventMarshalJSON(t *testing.T) {
	e := NewEvent(7, 0, SensorDisconnected{Error: ErrorIoReadFailed})

	p, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}

	s := string(p)
	for _, want := range []string{`"type":"sensorDisconnected"`, `"sensor":7`, `"error":804`} {
		if !strings.Contains(s, want) {
			t.Errorf("json = %s, missing %s", s, want)
		}
	}
}

func TestRotationFromQuaternion(t *testing.T) {
	testCases := []struct {
		name string
		q    [4]float32
		want [9]float32
	}{
		{"identity", [4]float32{1, 0, 0, 0}, [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		{"zero", [4]float32{}, [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		{"yaw 180", [4]float32{0, 0, 0, 1}, [9]float32{-1, 0, 0, 0, -1, 0, 0, 0, 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := RotationFromQuaternion(tc.q)
			for i := range got {
				if d := got[i] - tc.want[i]; d > 1e-6 || d < -1e-6 {
					t.Errorf("RotationFromQuaternion(%v) = %v, want %v", tc.q, got, tc.want)
					break
				}
			}
		})
	}
}

func TestErrorCodes(t *testing.T) {
	var err error = ErrorDeviceListing
	if AsError(err) != ErrorDeviceListing {
		t.Errorf("AsError() = %v, want %v", AsError(err), ErrorDeviceListing)
	}
	if AsError(nil) != ErrorNone {
		t.Errorf("AsError(nil) = %v, want %v", AsError(nil), ErrorNone)
	}
	if AsError(errors.New("plain")) != ErrorUnknown {
		t.Errorf("AsError(plain) = %v, want %v", AsError(errors.New("plain")), ErrorUnknown)
	}
	if !strings.Contains(ErrorIoTimeout.Error(), "812") {
		t.Errorf("Error() = %q, want code in message", ErrorIoTimeout.Error())
	}

	testCases := []struct {
		code Error
		want uint32
	}{
		{ErrorDeviceListing, 35},
		{ErrorIoReadFailed, 804},
		{ErrorIoTimeout, 812},
		{ErrorIoBaudratesUnknown, 821},
		{ErrorUnknownCommandMode, 851},
		{ErrorFWFunctionFailed, 900},
		{ErrorCanBusError, 1001},
		{ErrorCanOutOfAddresses, 1002},
		{ErrorCanResetFailed, 1006},
		{ErrorCanAddressOutOfRange, 1009},
	}
	for _, tc := range testCases {
		if uint32(tc.code) != tc.want {
			t.Errorf("%s = %d, want %d", tc.code, uint32(tc.code), tc.want)
		}
	}
}
