package counter

// Dose conversion factors.
const (
	// MicroSievertPerCPM converts counts per minute to µSv/h.
	MicroSievertPerCPM = 0.006
	// MilliRoentgenPerMicroSievert converts µSv/h to mR/h.
	MilliRoentgenPerMicroSievert = 0.1
)

// Rates are the average rates of a session.
type Rates struct {
	CPM                  float64
	MicroSievertPerHour  float64
	MilliRoentgenPerHour float64
}

// ComputeRates returns the average rates for total counts over durationSeconds.
// Sessions shorter than one minute report the total as CPM.
func ComputeRates(total uint64, durationSeconds int) Rates {
	cpm := float64(total)
	if durationSeconds >= 60 {
		cpm = float64(total) / (float64(durationSeconds) / 60)
	}

	usv := cpm * MicroSievertPerCPM

	return Rates{
		CPM:                  cpm,
		MicroSievertPerHour:  usv,
		MilliRoentgenPerHour: usv * MilliRoentgenPerMicroSievert,
	}
}
