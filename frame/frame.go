package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Fixed reply sizes in bytes.
const (
	AckSize     = 1
	CountSize   = 4
	VersionSize = 15
	ConfigSize  = 512
)

// AckOK is the acknowledgement byte returned by the device for a successful
// erase, write, commit or reset step.
const AckOK byte = 0xAA

// Command names understood by the device.
const (
	CmdHeartbeatOn  = "HEARTBEAT1"
	CmdHeartbeatOff = "HEARTBEAT0"
	CmdGetVersion   = "GETVER"
	CmdGetConfig    = "GETCFG"
	CmdEraseConfig  = "ECFG"
	CmdWriteConfig  = "WCFG"
	CmdUpdateConfig = "CFGUPDATE"
	CmdFactoryReset = "FACTORYRESET"
)

const (
	framePrefix = '<'
	frameSuffix = ">>"
)

// ErrTimeout indicates that a reply did not arrive in full before the read timeout.
var ErrTimeout = errors.New("frame: read timeout")

// ErrShortCount indicates that a count reply has the wrong length.
var ErrShortCount = errors.New("frame: count reply must be 4 bytes")

// ShortReadError reports a fixed-length read that ended early.
type ShortReadError struct {
	Want int
	Got  int
	// Err is the underlying read error, nil when the port simply timed out.
	Err error
}

func (e *ShortReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame: short read, got %d of %d bytes: %v", e.Got, e.Want, e.Err)
	}

	return fmt.Sprintf("frame: short read, got %d of %d bytes", e.Got, e.Want)
}

// Is reports ErrTimeout for every short read.
func (e *ShortReadError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *ShortReadError) Unwrap() error {
	return e.Err
}

// Encode builds a command frame: "<" + name + args + ">>".
func Encode(name string, args ...byte) []byte {
	buf := make([]byte, 0, 1+len(name)+len(args)+len(frameSuffix))
	buf = append(buf, framePrefix)
	buf = append(buf, name...)
	buf = append(buf, args...)
	buf = append(buf, frameSuffix...)

	return buf
}

// Heartbeat returns the frame that enables or disables per-second count pushes.
func Heartbeat(enabled bool) []byte {
	if enabled {
		return Encode(CmdHeartbeatOn)
	}

	return Encode(CmdHeartbeatOff)
}

// GetVersion returns the version query frame.
func GetVersion() []byte { return Encode(CmdGetVersion) }

// GetConfig returns the configuration read frame.
func GetConfig() []byte { return Encode(CmdGetConfig) }

// EraseConfig returns the configuration erase frame.
func EraseConfig() []byte { return Encode(CmdEraseConfig) }

// UpdateConfig returns the configuration commit frame.
func UpdateConfig() []byte { return Encode(CmdUpdateConfig) }

// FactoryReset returns the factory reset frame.
func FactoryReset() []byte { return Encode(CmdFactoryReset) }

// WriteConfig returns the frame writing val at the configuration address addr.
// The address is encoded as 2 bytes big-endian.
func WriteConfig(addr uint16, val byte) []byte {
	var args [3]byte
	binary.BigEndian.PutUint16(args[0:2], addr)
	args[2] = val

	return Encode(CmdWriteConfig, args[:]...)
}

// ReadExact reads exactly n bytes from r.
//
// Serial ports configured with a read timeout return (0, nil) when the timeout
// expires; ReadExact treats that, as well as io.EOF, as the end of the reply
// and returns a *ShortReadError. Any other read error is wrapped in the
// *ShortReadError as well so callers can still match ErrTimeout.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)

	for read := 0; read < n; {
		m, err := r.Read(buf[read:])
		read += m

		if read >= n {
			break
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}

			return buf[:read], &ShortReadError{Want: n, Got: read, Err: err}
		}

		if m == 0 {
			return buf[:read], &ShortReadError{Want: n, Got: read}
		}
	}

	return buf, nil
}

// DecodeCount decodes a 4-byte big-endian heartbeat count.
func DecodeCount(b []byte) (uint32, error) {
	if len(b) != CountSize {
		return 0, ErrShortCount
	}

	return binary.BigEndian.Uint32(b), nil
}

// IsAck reports whether b is the success acknowledgement byte.
func IsAck(b byte) bool {
	return b == AckOK
}
