package navigation

import (
	"time"

	"github.com/banshee-data/navfusion/internal/config"
)

// Config holds everything a Navigator needs. It is resolved once at
// start-up and never changes afterwards.
type Config struct {
	Velocity config.EstimatorSettings
	Position config.EstimatorSettings
	Adapter  config.AdapterSettings

	RangeMinM      float64 // usable ranging window, metres
	RangeMaxM      float64
	RangingEnabled bool // initial state of the runtime ranging gate

	VelocityTaskPeriod   time.Duration
	PositionTaskPeriod   time.Duration
	DeadReckoningTimeout time.Duration
}

// DefaultConfig returns navigator configuration loaded from the canonical
// tuning defaults file (config/navigation.defaults.json).
// Panics if the file cannot be found; intended for tests and binaries that
// have already validated config availability.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded NavTuning.
func ConfigFromTuning(t *config.NavTuning) Config {
	return Config{
		Velocity:             t.GetVelocity(),
		Position:             t.GetPosition(),
		Adapter:              t.GetAdapter(),
		RangeMinM:            t.GetRangeMinM(),
		RangeMaxM:            t.GetRangeMaxM(),
		RangingEnabled:       t.GetRangingEnabled(),
		VelocityTaskPeriod:   t.GetVelocityTaskPeriod(),
		PositionTaskPeriod:   t.GetPositionTaskPeriod(),
		DeadReckoningTimeout: t.GetDeadReckoningTimeout(),
	}
}
