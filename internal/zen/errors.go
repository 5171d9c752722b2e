package zen

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVariant is returned when a payload is read from an event whose
	// discriminant selects a different payload kind.
	ErrInvalidVariant = errors.New("invalid event variant")

	// ErrUseAfterRelease is returned when memory or a handle is accessed after
	// its owner has released it.
	ErrUseAfterRelease = errors.New("use after release")
)

// Error is an error code reported by a sensor, an IO system or the sensor
// runtime itself. The numeric values are those of ZenError in the OpenZen
// ZenTypes.h header; ErrorInvalidArgument and ErrorUnsupportedEvent are
// codes of this module with no counterpart there.
type Error uint32

const (
	ErrorNone    Error = 0
	ErrorUnknown Error = 1

	ErrorIsNull          Error = 10
	ErrorNotNull         Error = 11
	ErrorWrongDataType   Error = 12
	ErrorBufferTooSmall  Error = 13
	ErrorInvalidArgument Error = 14

	ErrorAlreadyInitialized Error = 20
	ErrorNotInitialized     Error = 21

	ErrorDeviceIoTypeInvalid     Error = 30
	ErrorDeviceSensorTypeInvalid Error = 31
	ErrorDeviceListingFailed     Error = 32
	ErrorDeviceListing           Error = 35

	ErrorWrongSensorType Error = 40
	ErrorWrongIoType     Error = 41
	ErrorUnknownDeviceID Error = 42

	ErrorIoAlreadyInitialized  Error = 800
	ErrorIoNotInitialized      Error = 801
	ErrorIoInitFailed          Error = 802
	ErrorIoDeinitFailed        Error = 803
	ErrorIoReadFailed          Error = 804
	ErrorIoSendFailed          Error = 805
	ErrorIoGetFailed           Error = 806
	ErrorIoSetFailed           Error = 807
	ErrorIoBusy                Error = 811
	ErrorIoTimeout             Error = 812
	ErrorIoUnexpectedFunction  Error = 813
	ErrorIoUnsupportedFunction Error = 814
	ErrorIoMsgCorrupt          Error = 815
	ErrorIoMsgTooBig           Error = 816
	ErrorIoExpectedAck         Error = 820
	ErrorIoBaudratesUnknown    Error = 821

	ErrorUnknownProperty    Error = 850
	ErrorUnknownCommandMode Error = 851
	ErrorUnsupportedEvent   Error = 852

	ErrorFWFunctionFailed Error = 900

	ErrorCanBusError          Error = 1001
	ErrorCanOutOfAddresses    Error = 1002
	ErrorCanResetFailed       Error = 1006
	ErrorCanAddressOutOfRange Error = 1009
)

var errorNames = map[Error]string{
	ErrorNone:                    "none",
	ErrorUnknown:                 "unknown",
	ErrorIsNull:                  "pointer is invalid (null)",
	ErrorNotNull:                 "expected a null pointer",
	ErrorWrongDataType:           "wrong data type",
	ErrorBufferTooSmall:          "provided buffer is too small",
	ErrorInvalidArgument:         "invalid argument",
	ErrorAlreadyInitialized:      "already initialized",
	ErrorNotInitialized:          "not initialized",
	ErrorDeviceIoTypeInvalid:     "invalid IO type",
	ErrorDeviceSensorTypeInvalid: "invalid sensor type",
	ErrorDeviceListingFailed:     "listing devices failed",
	ErrorDeviceListing:           "busy listing devices",
	ErrorWrongSensorType:         "wrong sensor type",
	ErrorWrongIoType:             "wrong IO type",
	ErrorUnknownDeviceID:         "unknown device ID",
	ErrorIoAlreadyInitialized:    "IO interface already initialized",
	ErrorIoNotInitialized:        "IO interface not initialized",
	ErrorIoInitFailed:            "failed to open IO interface",
	ErrorIoDeinitFailed:          "failed to close IO interface",
	ErrorIoReadFailed:            "failed to read from IO interface",
	ErrorIoSendFailed:            "failed to send to IO interface",
	ErrorIoGetFailed:             "failed to get value from IO interface",
	ErrorIoSetFailed:             "failed to set value on IO interface",
	ErrorIoBusy:                  "IO interface is busy",
	ErrorIoTimeout:               "IO interface timed out",
	ErrorIoUnexpectedFunction:    "unexpected function",
	ErrorIoUnsupportedFunction:   "unsupported function",
	ErrorIoMsgCorrupt:            "received message is corrupt",
	ErrorIoMsgTooBig:             "message too big",
	ErrorIoExpectedAck:           "expected ACK or NACK",
	ErrorIoBaudratesUnknown:      "supported baud rates unknown",
	ErrorUnknownProperty:         "unknown property",
	ErrorUnknownCommandMode:      "unknown command mode",
	ErrorUnsupportedEvent:        "unsupported event",
	ErrorFWFunctionFailed:        "firmware function failed",
	ErrorCanBusError:             "CAN interface is in an error state",
	ErrorCanOutOfAddresses:       "CAN channel is out of addresses",
	ErrorCanResetFailed:          "failed to reset CAN queues",
	ErrorCanAddressOutOfRange:    "CAN address out of range",
}

// Error implements the error interface.
func (e Error) Error() string {
	if name, ok := errorNames[e]; ok {
		return fmt.Sprintf("zen: %s (%d)", name, uint32(e))
	}
	return fmt.Sprintf("zen: error %d", uint32(e))
}

// String returns the short name of the code.
func (e Error) String() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("error %d", uint32(e))
}

// AsError extracts the Error code from err. It returns ErrorNone for a nil
// error and ErrorUnknown when err carries no code.
func AsError(err error) Error {
	if err == nil {
		return ErrorNone
	}

	var code Error
	if errors.As(err, &code) {
		return code
	}
	return ErrorUnknown
}
