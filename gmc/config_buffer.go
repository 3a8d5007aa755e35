package gmc

import (
	"fmt"
	"math"

	"github.com/arloliu/go-gmc/frame"
)

// ConfigSize is the size of the device configuration block in bytes.
const ConfigSize = frame.ConfigSize

// TubeVoltageOffset is the configuration offset of the tube 1 voltage byte.
const TubeVoltageOffset = 330

// MaxStoredVoltage is the stored value representing 100% of the reference voltage.
const MaxStoredVoltage = 150

// ConfigBuffer is the device configuration block.
type ConfigBuffer [ConfigSize]byte

// TubeVoltagePercent returns the tube 1 voltage as a percentage of the reference voltage.
func (b *ConfigBuffer) TubeVoltagePercent() float64 {
	return StoredToPercent(b[TubeVoltageOffset])
}

// SetTubeVoltagePercent stores percent, which must be in [0, 100], as the tube 1 voltage.
func (b *ConfigBuffer) SetTubeVoltagePercent(percent float64) error {
	stored, err := PercentToStored(percent)
	if err != nil {
		return err
	}
	b[TubeVoltageOffset] = stored

	return nil
}

// Clone returns a copy of the buffer.
func (b *ConfigBuffer) Clone() *ConfigBuffer {
	c := *b
	return &c
}

// PercentToStored converts a voltage percentage into the stored byte: round(percent * 1.5).
func PercentToStored(percent float64) (byte, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: %v", ErrVoltageRange, percent)
	}

	return byte(math.Round(percent * MaxStoredVoltage / 100)), nil
}

// StoredToPercent converts a stored voltage byte into a percentage: stored * 2/3.
func StoredToPercent(stored byte) float64 {
	return float64(stored) * 2 / 3
}
