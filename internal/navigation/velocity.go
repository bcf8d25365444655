package navigation

import (
	"fmt"
	"time"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// Samples is one poll of every sensor stream.
type Samples struct {
	IMU   sensors.IMUSample
	Flow  sensors.FlowSample
	Baro  sensors.BaroSample
	Range sensors.RangeSample
}

// ReadSamples polls src once per stream.
func ReadSamples(src sensors.Source) Samples {
	return Samples{IMU: src.IMU(), Flow: src.Flow(), Baro: src.Baro(), Range: src.Range()}
}

// stepTimer measures the elapsed time of a periodic task and clamps it to
// the integration bounds of its filter.
type stepTimer struct {
	label   string
	watch   *timeutil.Stopwatch
	bounds  timeutil.Bounds
	clamped *monitoring.Limiter
}

func newStepTimer(label string, clock timeutil.Clock, minDt, maxDt time.Duration) (*stepTimer, error) {
	b := timeutil.Bounds{Min: minDt, Max: maxDt}
	if !b.Valid() {
		return nil, fmt.Errorf("%s dt bounds [%s, %s] are not a positive interval", label, minDt, maxDt)
	}
	return &stepTimer{
		label:   label,
		watch:   timeutil.NewStopwatch(clock),
		bounds:  b,
		clamped: monitoring.NewLimiter(1000),
	}, nil
}

// next returns the clamped elapsed time since the previous cycle. The first
// cycle is measured from the zero time and always clamps to the upper bound.
func (t *stepTimer) next(cycle uint64) time.Duration {
	raw := t.watch.Lap()
	dt := t.bounds.Clamp(raw)
	if dt != raw && cycle > 0 && t.clamped.Allow() {
		monitoring.Logf("[nav] %s cycle %d: elapsed %s outside [%s, %s], integrating %s (%d clamps)",
			t.label, cycle, raw, t.bounds.Min, t.bounds.Max, dt, t.clamped.Count())
	}
	return dt
}

func (t *stepTimer) now() time.Time { return t.watch.Last() }

// VelocityEstimator is the first stage of the cascade: a six-state filter
// over body velocity and accelerometer bias, predicted from the specific
// force and corrected by flow, barometric and ranging velocities.
type VelocityEstimator struct {
	engine  Engine
	adapter *Adapter
	stager  *VelocityStager
	dec     *Decimator
	timer   *stepTimer

	measurement [VelocityChannelCount]float64
	enabled     [VelocityChannelCount]bool
}

// NewVelocityEstimator wires an engine to its scheduling policy.
func NewVelocityEstimator(engine Engine, adapter *Adapter, s config.EstimatorSettings, rangeMin, rangeMax float64, clock timeutil.Clock) (*VelocityEstimator, error) {
	dec, err := NewDecimator(s.DecimationRatio)
	if err != nil {
		return nil, fmt.Errorf("velocity: %w", err)
	}
	timer, err := newStepTimer("velocity", clock, s.MinDt, s.MaxDt)
	if err != nil {
		return nil, err
	}
	return &VelocityEstimator{
		engine:  engine,
		adapter: adapter,
		stager:  NewVelocityStager(adapter, s.ChannelsEnabled, rangeMin, rangeMax),
		dec:     dec,
		timer:   timer,
	}, nil
}

// Step runs one cycle: predict with the clamped elapsed time, then fuse the
// staged measurement if this is a fusion cycle.
func (e *VelocityEstimator) Step(in Samples, ranging bool) VelocitySnapshot {
	cycle := e.dec.Cycle()
	dt := e.timer.next(cycle)
	secs := dt.Seconds()

	accel := e.adapter.SpecificForce(in.IMU)
	e.engine.Predict([]float64{accel.X * secs, accel.Y * secs, accel.Z * secs, 0, 0, 0}, secs)

	staged, fuse := e.stager.Stage(e.dec.Tick(), in.Flow, in.Baro, in.Range, ranging)
	if fuse {
		e.engine.Fuse(staged.Measurement[:], staged.Enabled[:])
		e.measurement = staged.Measurement
		e.enabled = staged.Enabled
	}

	x := e.engine.State()
	return VelocitySnapshot{
		Cycle:       cycle,
		Time:        e.timer.now(),
		Dt:          dt,
		Fused:       fuse,
		Accel:       accel,
		Velocity:    Vector3{X: x[0], Y: x[1], Z: x[2]},
		AccelBias:   Vector3{X: x[3], Y: x[4], Z: x[5]},
		Measurement: e.measurement,
		Enabled:     e.enabled,
	}
}

// Reset zeroes the velocity states and keeps the bias estimate.
func (e *VelocityEstimator) Reset() {
	x := e.engine.State()
	x[0], x[1], x[2] = 0, 0, 0
	e.engine.SetState(x)
}

// Ratio returns the decimation ratio.
func (e *VelocityEstimator) Ratio() int { return e.dec.Ratio() }

// Bounds returns the integration interval bounds.
func (e *VelocityEstimator) Bounds() timeutil.Bounds { return e.timer.bounds }
