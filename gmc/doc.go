// Package gmc implements a client for GQ GMC radiation counters attached over a serial link.
//
// A Connection is opened with Open, which disables heartbeat mode, waits for
// the device to settle and verifies the 15 byte version string against the
// accepted model prefixes. Once open, the connection supports:
//
//   - ReadConfig / WriteConfig: read the 512 byte configuration block and write
//     it back with the erase, per-address write and commit sequence.
//   - SetHeartbeat / ReadCount: toggle the per-second count push mode and read
//     the 4 byte pushes it produces.
//   - FactoryReset.
//   - ReadTubeVoltage / WriteTubeVoltage: convenience wrappers around the
//     tube 1 voltage byte stored at ConfigBuffer offset 330.
//
// # Heartbeat discipline
//
// While heartbeat mode is on the device pushes a count every second, and those
// bytes would be misread as the reply to any other command. The Connection
// therefore refuses configuration and reset commands with ErrHeartbeatActive
// until heartbeat mode is turned off again, and refuses to enable heartbeat
// twice. Close always turns heartbeat off before releasing the port.
//
// # Errors
//
// Failures are reported with typed errors that match package sentinels through
// errors.Is: *ConnectionError (ErrConnection), *UnsupportedDeviceError
// (ErrUnsupportedDevice), *IOError (ErrIO) and *ProtocolError or
// *WriteConfigError (ErrProtocol). Nothing in this package retries; callers
// decide whether to repeat an operation.
//
// A Controller owns at most one Connection at a time and reports state changes
// to registered handlers, which is what a presentation layer binds to.
package gmc
