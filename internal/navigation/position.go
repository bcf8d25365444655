package navigation

import (
	"fmt"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// PositionEstimator is the second stage of the cascade. It integrates the
// velocity published by the first stage and corrects with integrated flow
// displacement and height.
type PositionEstimator struct {
	engine  Engine
	adapter *Adapter
	stager  *PositionStager
	dec     *Decimator
	timer   *stepTimer

	measurement Vector3
	enabled     [PositionChannelCount]bool
}

// NewPositionEstimator wires an engine to its scheduling policy.
func NewPositionEstimator(engine Engine, adapter *Adapter, s config.EstimatorSettings, clock timeutil.Clock) (*PositionEstimator, error) {
	dec, err := NewDecimator(s.DecimationRatio)
	if err != nil {
		return nil, fmt.Errorf("position: %w", err)
	}
	timer, err := newStepTimer("position", clock, s.MinDt, s.MaxDt)
	if err != nil {
		return nil, err
	}
	return &PositionEstimator{
		engine:  engine,
		adapter: adapter,
		stager:  NewPositionStager(adapter, s.ChannelsEnabled),
		dec:     dec,
		timer:   timer,
	}, nil
}

// Step runs one cycle with velocity as the control input.
func (e *PositionEstimator) Step(in Samples, velocity Vector3) PositionSnapshot {
	cycle := e.dec.Cycle()
	dt := e.timer.next(cycle)
	secs := dt.Seconds()

	u := velocity.Scale(secs)
	e.engine.Predict([]float64{u.X, u.Y, u.Z}, secs)

	staged, fuse := e.stager.Stage(e.dec.Tick(), in.Flow, in.Baro, in.Range)
	if fuse {
		e.engine.Fuse([]float64{staged.Measurement.X, staged.Measurement.Y, staged.Measurement.Z}, staged.Enabled[:])
		e.measurement = staged.Measurement
		e.enabled = staged.Enabled
	}

	x := e.engine.State()
	return PositionSnapshot{
		Cycle:       cycle,
		Time:        e.timer.now(),
		Dt:          dt,
		Fused:       fuse,
		Position:    Vector3{X: x[0], Y: x[1], Z: x[2]},
		Measurement: e.measurement,
		Enabled:     e.enabled,
	}
}

// Reset seeds the position with the latest flow displacement and height.
// A component whose source sample is invalid keeps its current estimate.
func (e *PositionEstimator) Reset(in Samples) {
	m := e.adapter.PositionChannels(in.Flow, in.Baro, in.Range)
	x := e.engine.State()
	if in.Flow.Valid {
		x[0], x[1] = m.X, m.Y
	}
	if e.adapter.HeightValid(in.Baro, in.Range) {
		x[2] = m.Z
	}
	e.engine.SetState(x)
}

// Ratio returns the decimation ratio.
func (e *PositionEstimator) Ratio() int { return e.dec.Ratio() }

// Bounds returns the integration interval bounds.
func (e *PositionEstimator) Bounds() timeutil.Bounds { return e.timer.bounds }
