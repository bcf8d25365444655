package navigation

import (
	"fmt"

	"github.com/banshee-data/navfusion/internal/sensors"
)

// Velocity measurement channels, in the order the filter's H and R rows use.
const (
	FlowVelX = iota
	FlowVelY
	BaroVelZ
	Reserved3
	RangeVelZ
	Reserved5
	VelocityChannelCount
)

// Position measurement channels.
const (
	PosFlowX = iota
	PosFlowY
	PosHeight
	PositionChannelCount
)

// Decimator selects the cycles that carry a measurement update: one in every
// ratio cycles, starting with the first.
type Decimator struct {
	ratio uint64
	cycle uint64
}

// NewDecimator returns a Decimator firing once every ratio cycles.
func NewDecimator(ratio int) (*Decimator, error) {
	if ratio < 1 {
		return nil, fmt.Errorf("decimation ratio must be at least 1, got %d", ratio)
	}
	return &Decimator{ratio: uint64(ratio)}, nil
}

// Tick advances one cycle and reports whether it is a fusion cycle.
func (d *Decimator) Tick() bool {
	fuse := d.cycle%d.ratio == 0
	d.cycle++
	return fuse
}

// Cycle returns the number of cycles ticked so far.
func (d *Decimator) Cycle() uint64 { return d.cycle }

// Ratio returns the decimation ratio.
func (d *Decimator) Ratio() int { return int(d.ratio) }

// VelocityStage is the measurement handed to the velocity filter on a fusion
// cycle.
type VelocityStage struct {
	Measurement [VelocityChannelCount]float64
	Enabled     [VelocityChannelCount]bool
}

// VelocityStager assembles velocity measurements and their per-channel
// enables.
type VelocityStager struct {
	adapter    *Adapter
	configured [VelocityChannelCount]bool
	rangeMin   float64
	rangeMax   float64
}

// NewVelocityStager returns a stager. configured holds the channels the
// tuning allows at all; rangeMin and rangeMax bound usable ranging
// distances in metres.
func NewVelocityStager(a *Adapter, configured []bool, rangeMin, rangeMax float64) *VelocityStager {
	s := &VelocityStager{adapter: a, rangeMin: rangeMin, rangeMax: rangeMax}
	copy(s.configured[:], configured)
	return s
}

// Stage builds the measurement for one cycle. Non-fusion cycles stage
// nothing and return false. A channel is enabled when the tuning allows it
// and its source sample is valid; the ranging channel additionally needs
// the runtime ranging gate and a distance inside the usable window.
func (s *VelocityStager) Stage(fuse bool, flow sensors.FlowSample, baro sensors.BaroSample, rng sensors.RangeSample, ranging bool) (VelocityStage, bool) {
	if !fuse {
		return VelocityStage{}, false
	}

	st := VelocityStage{Measurement: s.adapter.VelocityChannels(flow, baro, rng)}
	st.Enabled[FlowVelX] = s.configured[FlowVelX] && flow.Valid
	st.Enabled[FlowVelY] = s.configured[FlowVelY] && flow.Valid
	st.Enabled[BaroVelZ] = s.configured[BaroVelZ] && baro.Valid
	st.Enabled[Reserved3] = s.configured[Reserved3]
	st.Enabled[RangeVelZ] = s.configured[RangeVelZ] && s.RangingUsable(rng, ranging)
	st.Enabled[Reserved5] = s.configured[Reserved5]
	return st, true
}

// RangingUsable reports whether a ranging sample may be fused this cycle.
func (s *VelocityStager) RangingUsable(rng sensors.RangeSample, ranging bool) bool {
	return ranging && rng.Valid && rng.Distance >= s.rangeMin && rng.Distance <= s.rangeMax
}

// PositionStage is the measurement handed to the position filter.
type PositionStage struct {
	Measurement Vector3
	Enabled     [PositionChannelCount]bool
}

// PositionStager assembles position measurements.
type PositionStager struct {
	adapter    *Adapter
	configured [PositionChannelCount]bool
}

// NewPositionStager returns a stager for the position channels.
func NewPositionStager(a *Adapter, configured []bool) *PositionStager {
	s := &PositionStager{adapter: a}
	copy(s.configured[:], configured)
	return s
}

// Stage builds the position measurement for one cycle, or returns false on
// non-fusion cycles.
func (s *PositionStager) Stage(fuse bool, flow sensors.FlowSample, baro sensors.BaroSample, rng sensors.RangeSample) (PositionStage, bool) {
	if !fuse {
		return PositionStage{}, false
	}
	st := PositionStage{Measurement: s.adapter.PositionChannels(flow, baro, rng)}
	st.Enabled[PosFlowX] = s.configured[PosFlowX] && flow.Valid
	st.Enabled[PosFlowY] = s.configured[PosFlowY] && flow.Valid
	st.Enabled[PosHeight] = s.configured[PosHeight] && s.adapter.HeightValid(baro, rng)
	return st, true
}
