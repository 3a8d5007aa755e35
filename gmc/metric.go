package gmc

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for a GMC connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc, see package metrics.
type ConnectionMetrics struct {
	// CommandCount indicates the number of command frames written to the port.
	CommandCount atomic.Uint64
	// BytesWritten indicates the number of bytes written to the port.
	BytesWritten atomic.Uint64
	// BytesRead indicates the number of reply bytes read from the port.
	BytesRead atomic.Uint64
	// AckFailCount indicates the number of acknowledgements that were not 0xAA or could not be read.
	AckFailCount atomic.Uint64
	// ReadTimeoutCount indicates the number of fixed-length reads that ended short.
	ReadTimeoutCount atomic.Uint64
	// HeartbeatCount indicates the number of heartbeat count pushes read.
	HeartbeatCount atomic.Uint64
	// ConfigWriteCount indicates the number of completed configuration rewrites.
	ConfigWriteCount atomic.Uint64
	// HeartbeatGauge is 1 while heartbeat mode is enabled.
	HeartbeatGauge atomic.Uint32
}

func (m *ConnectionMetrics) incCommandCount(frameLen int) {
	m.CommandCount.Add(1)
	m.BytesWritten.Add(uint64(frameLen))
}

func (m *ConnectionMetrics) addBytesRead(n int) {
	m.BytesRead.Add(uint64(n))
}

func (m *ConnectionMetrics) incAckFailCount() {
	m.AckFailCount.Add(1)
}

func (m *ConnectionMetrics) incReadTimeoutCount() {
	m.ReadTimeoutCount.Add(1)
}

func (m *ConnectionMetrics) incHeartbeatCount() {
	m.HeartbeatCount.Add(1)
}

func (m *ConnectionMetrics) incConfigWriteCount() {
	m.ConfigWriteCount.Add(1)
}

func (m *ConnectionMetrics) setHeartbeat(on bool) {
	if on {
		m.HeartbeatGauge.Store(1)
	} else {
		m.HeartbeatGauge.Store(0)
	}
}
