package scadabridge

import (
	"errors"

	"github.com/dernate/scadabridge/outstation"
)

var (
	// ErrInvalidSetpoint is returned when a command value lies outside [0,100].
	ErrInvalidSetpoint = errors.New("invalid setpoint")
	// ErrUnsupportedIndex is returned for analog output indices other than 0, 1 and 2.
	ErrUnsupportedIndex = errors.New("unsupported index")
	// ErrUnmappedTopic is returned for inbound messages on a topic no channel listens to.
	ErrUnmappedTopic = errors.New("unmapped topic")
	// ErrAddress is returned for point indices outside the address map.
	ErrAddress = errors.New("addressing error")
	// ErrInvalidPayload is returned when an inbound payload cannot be parsed for its channel.
	ErrInvalidPayload = errors.New("invalid payload")
)

// StatusFor maps a command error to the status reported to the master.
func StatusFor(err error) outstation.CommandStatus {
	switch {
	case err == nil:
		return outstation.CommandStatusSuccess
	case errors.Is(err, ErrInvalidSetpoint):
		return outstation.CommandStatusOutOfRange
	case errors.Is(err, ErrUnsupportedIndex):
		return outstation.CommandStatusNotSupported
	default:
		return outstation.CommandStatusHardwareError
	}
}
