package gmc

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// modelLen is the length of the model part of a version string, e.g. "GMC-500".
const modelLen = 7

// tubeVoltageModels lists the models whose configuration exposes the tube 1 voltage.
var tubeVoltageModels = []string{"GMC-500", "GMC-600"}

// DeviceVersion is the 15 character version string reported by <GETVER>>,
// e.g. "GMC-500+Re 2.42".
type DeviceVersion string

// DecodeVersion converts the raw version reply into a DeviceVersion.
//
// The reply is decoded as ISO-8859-1 so that bytes outside the ASCII range
// are kept as runes instead of producing invalid UTF-8. Trailing NUL and
// space padding is removed.
func DecodeVersion(raw []byte) DeviceVersion {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		decoded = raw
	}

	return DeviceVersion(strings.TrimRight(string(decoded), "\x00 "))
}

// String returns the version string.
func (v DeviceVersion) String() string { return string(v) }

// Model returns the model part of the version, e.g. "GMC-500".
func (v DeviceVersion) Model() string {
	s := string(v)
	if len(s) > modelLen {
		s = s[:modelLen]
	}

	return s
}

// HasPrefix reports whether the version starts with any of the given prefixes.
func (v DeviceVersion) HasPrefix(prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(string(v), p) {
			return true
		}
	}

	return false
}

// SupportsTubeVoltage reports whether the model stores a configurable tube 1 voltage.
func (v DeviceVersion) SupportsTubeVoltage() bool {
	model := v.Model()
	for _, m := range tubeVoltageModels {
		if model == m {
			return true
		}
	}

	return false
}
