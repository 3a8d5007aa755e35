package gmc

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream a Connection talks over.
//
// Read must return (0, nil) or an error once the read timeout expires, which
// is how go.bug.st/serial ports behave.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
}

// PortOpener opens the serial endpoint at path with the given baud rate.
type PortOpener func(path string, baud int) (Port, error)

var _ Port = (serial.Port)(nil)

// OpenSerialPort opens path as an 8N1 serial port. It is the default PortOpener.
func OpenSerialPort(path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	return serial.Open(path, mode)
}

// ListPorts returns the names of the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, &ConnectionError{Op: "list", Path: "serial ports", Err: err}
	}

	return ports, nil
}
