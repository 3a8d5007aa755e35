package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"heartbeat on", Heartbeat(true), "<HEARTBEAT1>>"},
		{"heartbeat off", Heartbeat(false), "<HEARTBEAT0>>"},
		{"get version", GetVersion(), "<GETVER>>"},
		{"get config", GetConfig(), "<GETCFG>>"},
		{"erase config", EraseConfig(), "<ECFG>>"},
		{"update config", UpdateConfig(), "<CFGUPDATE>>"},
		{"factory reset", FactoryReset(), "<FACTORYRESET>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.got))
		})
	}
}

func TestWriteConfig(t *testing.T) {
	got := WriteConfig(0x014A, 0x4B)
	assert.Equal(t, []byte{'<', 'W', 'C', 'F', 'G', 0x01, 0x4A, 0x4B, '>', '>'}, got)

	got = WriteConfig(511, 0xFF)
	assert.Equal(t, []byte("<WCFG\x01\xff\xff>>"), got)
}

func TestReadExact_Full(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3, 4, 5})

	b, err := ReadExact(r, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)

	// the remaining byte stays in the reader, nothing is buffered by ReadExact
	b, err = ReadExact(r, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, b)
}

// chunkReader returns its chunks one Read call at a time, then (0, nil) forever,
// the way a serial port with an expired read timeout behaves.
type chunkReader struct {
	chunks [][]byte
	calls  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.calls++
	if len(r.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}

	return n, nil
}

func TestReadExact_Reassembles_WithinOneCall(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{[]byte("GMC-"), []byte("500+Re 1.22"), []byte("x")}}

	b, err := ReadExact(r, VersionSize)
	require.NoError(t, err)
	assert.Equal(t, "GMC-500+Re 1.22", string(b))
}

func TestReadExact_TimeoutIsShortRead(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{{0xAA, 0xBB}}}

	b, err := ReadExact(r, CountSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, []byte{0xAA, 0xBB}, b)

	var shortErr *ShortReadError
	require.True(t, errors.As(err, &shortErr))
	assert.Equal(t, 4, shortErr.Want)
	assert.Equal(t, 2, shortErr.Got)
	assert.NoError(t, shortErr.Unwrap())
}

func TestReadExact_EOF(t *testing.T) {
	b, err := ReadExact(bytes.NewReader([]byte{0xAA}), ConfigSize)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, b, 1)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadExact_WrapsPortError(t *testing.T) {
	portErr := errors.New("port disconnected")

	_, err := ReadExact(failingReader{err: portErr}, AckSize)
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, portErr)
	assert.Contains(t, err.Error(), "port disconnected")
}

func TestReadExact_EmptyIsNotSilentlyFilled(t *testing.T) {
	_, err := ReadExact(io.LimitReader(bytes.NewReader(nil), 0), 1)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestDecodeCount(t *testing.T) {
	n, err := DecodeCount([]byte{0x00, 0x00, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, uint32(258), n)

	_, err = DecodeCount([]byte{0x01})
	require.ErrorIs(t, err, ErrShortCount)
}

func TestIsAck(t *testing.T) {
	assert.True(t, IsAck(0xAA))
	assert.False(t, IsAck(0x00))
	assert.False(t, IsAck(0x55))
}
