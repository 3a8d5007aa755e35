package gmc

import (
	"errors"
	"fmt"
)

// Sentinel errors of the gmc package.
var (
	// ErrConnection matches every *ConnectionError.
	ErrConnection = errors.New("gmc: connection error")
	// ErrUnsupportedDevice matches every *UnsupportedDeviceError.
	ErrUnsupportedDevice = errors.New("gmc: unsupported device")
	// ErrIO matches every *IOError.
	ErrIO = errors.New("gmc: i/o error")
	// ErrProtocol matches every *ProtocolError and *WriteConfigError.
	ErrProtocol = errors.New("gmc: protocol error")

	ErrConnClosed         = errors.New("gmc: connection closed")
	ErrHeartbeatActive    = errors.New("gmc: heartbeat mode is active")
	ErrHeartbeatInactive  = errors.New("gmc: heartbeat mode is not active")
	ErrVoltageRange       = errors.New("gmc: tube voltage percent out of range [0, 100]")
	ErrVoltageUnsupported = errors.New("gmc: device model does not support tube voltage configuration")
	ErrNotConnected       = errors.New("gmc: no device connected")
)

// ConnectionError reports a failure to open or close the serial endpoint.
type ConnectionError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gmc: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnsupportedDeviceError reports a version string without a recognized model prefix.
type UnsupportedDeviceError struct {
	Version DeviceVersion
}

func (e *UnsupportedDeviceError) Error() string {
	return fmt.Sprintf("gmc: unsupported device version %q", string(e.Version))
}

func (e *UnsupportedDeviceError) Is(target error) bool { return target == ErrUnsupportedDevice }

// IOError reports a timeout, short read or write failure during a command.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("gmc: %s: %v", e.Op, e.Err)
}

func (e *IOError) Is(target error) bool { return target == ErrIO }

func (e *IOError) Unwrap() error { return e.Err }

// Protocol steps that are acknowledged with a single byte.
const (
	StepErase  = "erase"
	StepWrite  = "write"
	StepCommit = "commit"
	StepReset  = "reset"
)

// ProtocolError reports a step whose acknowledgement byte was not 0xAA.
//
// Address is only meaningful for StepWrite. When the ack byte could not be
// read at all, HasAck is false and Err holds the read error.
type ProtocolError struct {
	Step    string
	Address uint16
	Got     byte
	HasAck  bool
	Err     error
}

func (e *ProtocolError) Error() string {
	where := e.Step
	if e.Step == StepWrite {
		where = fmt.Sprintf("%s at address %d", e.Step, e.Address)
	}

	if !e.HasAck {
		return fmt.Sprintf("gmc: %s not acknowledged: %v", where, e.Err)
	}

	return fmt.Sprintf("gmc: %s rejected with ack 0x%02X", where, e.Got)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func (e *ProtocolError) Unwrap() error { return e.Err }

// WriteConfigError aggregates every failed step of a configuration rewrite.
type WriteConfigError struct {
	Failures []ProtocolError
}

func (e *WriteConfigError) Error() string {
	writes := 0
	for _, f := range e.Failures {
		if f.Step == StepWrite {
			writes++
		}
	}

	return fmt.Sprintf("gmc: config write finished with %d failed steps (%d failed addresses)", len(e.Failures), writes)
}

func (e *WriteConfigError) Is(target error) bool { return target == ErrProtocol }

// Unwrap returns the individual failures as *ProtocolError values.
func (e *WriteConfigError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i := range e.Failures {
		errs[i] = &e.Failures[i]
	}

	return errs
}

// Addresses returns the addresses whose write was not acknowledged, in write order.
func (e *WriteConfigError) Addresses() []uint16 {
	addrs := make([]uint16, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Step == StepWrite {
			addrs = append(addrs, f.Address)
		}
	}

	return addrs
}

// StepFailed reports whether the given step (StepErase, StepWrite or StepCommit) failed at least once.
func (e *WriteConfigError) StepFailed(step string) bool {
	for _, f := range e.Failures {
		if f.Step == step {
			return true
		}
	}

	return false
}
