// Package frame implements the command framing of the GQ GMC serial protocol.
//
// Commands are plain ASCII sequences of the form "<NAME>>" or, for commands
// carrying arguments, "<NAME" followed by raw argument bytes and ">>":
//
//	<GETVER>>                  query version, 15 byte ASCII reply
//	<WCFG[addr:2][val:1]>>     write one configuration byte, 1 byte ack
//
// Replies are never delimited. Every reply has a length known in advance
// (AckSize, CountSize, VersionSize or ConfigSize) and is read with ReadExact.
// A reply that does not arrive in full within the port's read timeout is
// reported as a *ShortReadError matching ErrTimeout; bytes are never carried
// over or reassembled across calls.
package frame
