package counter

import (
	"errors"
	"time"

	"github.com/arloliu/go-gmc/logger"
)

// DefaultInterval is the length of one counting iteration.
const DefaultInterval = time.Second

type engineConfig struct {
	interval time.Duration
	logger   logger.Logger
}

// EngineOption is a functional option for configuring an Engine.
type EngineOption interface {
	apply(*engineConfig) error
}

type engineOptFunc func(*engineConfig) error

func (f engineOptFunc) apply(cfg *engineConfig) error { return f(cfg) }

// WithInterval sets the iteration length used to pace the loop after a failed read.
// Successful reads are paced by the device's heartbeat pushes.
func WithInterval(d time.Duration) EngineOption {
	return engineOptFunc(func(cfg *engineConfig) error {
		if d <= 0 {
			return errors.New("counter: interval must be positive")
		}
		cfg.interval = d

		return nil
	})
}

// WithLogger sets the logger of the engine.
func WithLogger(l logger.Logger) EngineOption {
	return engineOptFunc(func(cfg *engineConfig) error {
		if l == nil {
			return errors.New("counter: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
