package realtime

import (
	"errors"
	"fmt"
)

// Messages surfaced to the host. Nothing else about a failure leaves the package.
const (
	MsgConnectionError  = "Connection error occurred"
	MsgMicrophoneDenied = "Failed to access microphone. Please grant permission."
	MsgStartFailed      = "Failed to start interview"
	MsgServerError      = "The interview server reported an error"
)

var (
	// ErrNotConnected is returned when sending without an open connection
	ErrNotConnected = errors.New("not connected")

	// ErrStopped is returned by Connect once the transport has been stopped
	ErrStopped = errors.New("transport stopped")

	// ErrAlreadyStarted is returned by a second Connect on the same transport
	ErrAlreadyStarted = errors.New("transport already started")
)

// TransportError is a dial, write or abnormal close failure
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is an inbound message that could not be understood
type ProtocolError struct {
	Type string // message type, empty when the envelope itself was unreadable
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("malformed message: %v", e.Err)
	}
	return fmt.Sprintf("malformed %s message: %v", e.Type, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
