package gmc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/arloliu/go-gmc/internal/simulator"
	"github.com/arloliu/go-gmc/logger"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	os.Exit(m.Run())
}

// simOpener returns a PortOpener handing out dev.
func simOpener(dev *simulator.Device) PortOpener {
	return func(string, int) (Port, error) {
		return dev, nil
	}
}

func newTestConfig(t *testing.T, dev *simulator.Device, opts ...ConnOption) *ConnectionConfig {
	t.Helper()

	opts = append([]ConnOption{
		WithPortOpener(simOpener(dev)),
		WithSettleTime(0),
		WithReadTimeout(50 * time.Millisecond),
	}, opts...)

	cfg, err := NewConnectionConfig("/dev/ttyGMC0", opts...)
	require.NoError(t, err)

	return cfg
}

func openTestConn(t *testing.T, dev *simulator.Device, opts ...ConnOption) *Connection {
	t.Helper()

	conn, err := Open(context.Background(), newTestConfig(t, dev, opts...))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}
