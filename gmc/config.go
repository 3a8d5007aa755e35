package gmc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-gmc/logger"
)

// Default connection settings of GQ GMC counters.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 1 * time.Second
	DefaultSettleTime  = 500 * time.Millisecond

	// DefaultDevicePrefix is the version prefix shared by all GMC models.
	DefaultDevicePrefix = "GMC"
)

// Read timeout range limits.
const (
	MinReadTimeout = 10 * time.Millisecond
	MaxReadTimeout = 10 * time.Second
)

// ConnectionConfig holds all configuration for a serial connection to a GMC device.
type ConnectionConfig struct {
	path string

	baudRate    int
	readTimeout time.Duration

	// settleTime is the wait between disabling heartbeat and querying the version,
	// giving the device time to flush any pending push.
	settleTime time.Duration

	devicePrefixes []string

	opener PortOpener
	logger logger.Logger
}

// NewConnectionConfig creates a new connection configuration for the serial port at path.
//
// opts are functional options applied in order; see With* functions.
func NewConnectionConfig(path string, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		baudRate:       DefaultBaudRate,
		readTimeout:    DefaultReadTimeout,
		settleTime:     DefaultSettleTime,
		devicePrefixes: []string{DefaultDevicePrefix},
		opener:         OpenSerialPort,
		logger:         logger.GetLogger(),
	}

	if err := cfg.setPath(path); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *ConnectionConfig) setPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("gmc: serial port path must not be empty")
	}
	cfg.path = path

	return nil
}

// --- Getters ---

// Path returns the serial port path, e.g. "/dev/ttyUSB0" or "COM6".
func (cfg *ConnectionConfig) Path() string { return cfg.path }

// BaudRate returns the configured baud rate.
func (cfg *ConnectionConfig) BaudRate() int { return cfg.baudRate }

// ReadTimeout returns the per-read timeout applied to the port.
func (cfg *ConnectionConfig) ReadTimeout() time.Duration { return cfg.readTimeout }

// SettleTime returns the wait between disabling heartbeat and the version query.
func (cfg *ConnectionConfig) SettleTime() time.Duration { return cfg.settleTime }

// DevicePrefixes returns the accepted version prefixes.
func (cfg *ConnectionConfig) DevicePrefixes() []string {
	prefixes := make([]string, len(cfg.devicePrefixes))
	copy(prefixes, cfg.devicePrefixes)

	return prefixes
}

// GetLogger returns the configured logger.
func (cfg *ConnectionConfig) GetLogger() logger.Logger { return cfg.logger }

// --- ConnOption ---

// ConnOption is a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc func(*ConnectionConfig) error

func (f connOptFunc) apply(cfg *ConnectionConfig) error { return f(cfg) }

// WithBaudRate sets the serial baud rate. Default is 115200.
func WithBaudRate(baud int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if baud <= 0 {
			return fmt.Errorf("gmc: baud rate %d must be positive", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithReadTimeout sets the timeout of every read from the port. Must be in [10ms, 10s].
func WithReadTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("gmc: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithSettleTime sets the wait between disabling heartbeat and the version query on open.
func WithSettleTime(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < 0 {
			return errors.New("gmc: settle time must not be negative")
		}
		cfg.settleTime = d

		return nil
	})
}

// WithDevicePrefixes replaces the accepted version prefixes. At least one non-empty prefix is required.
func WithDevicePrefixes(prefixes ...string) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if len(prefixes) == 0 {
			return errors.New("gmc: at least one device prefix is required")
		}
		for _, p := range prefixes {
			if p == "" {
				return errors.New("gmc: device prefix must not be empty")
			}
		}
		cfg.devicePrefixes = append([]string(nil), prefixes...)

		return nil
	})
}

// WithPortOpener replaces the function used to open the serial port.
// The default opener uses go.bug.st/serial.
func WithPortOpener(opener PortOpener) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if opener == nil {
			return errors.New("gmc: port opener must not be nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithLogger sets the logger for the connection.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("gmc: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
