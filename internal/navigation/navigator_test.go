package navigation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/navfusion/internal/kalman"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

func TestElapsedTimeIsClamped(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantVel time.Duration
		wantPos time.Duration
	}{
		{"nominal", time.Millisecond, time.Millisecond, time.Millisecond},
		{"too short", 100 * time.Microsecond, 500 * time.Microsecond, 500 * time.Microsecond},
		{"stalled", 8 * time.Millisecond, 5 * time.Millisecond, 2 * time.Millisecond},
		{"between bounds", 3 * time.Millisecond, 3 * time.Millisecond, 2 * time.Millisecond},
		{"clock step back", -time.Second, 500 * time.Microsecond, 500 * time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, nil)
			r.cycle(0) // first cycle, measured from the zero time

			r.cycle(tt.elapsed)
			assert.Equal(t, tt.wantVel.Seconds(), r.vel.last("predict").dt)
			assert.Equal(t, tt.wantPos.Seconds(), r.pos.last("predict").dt)
			assert.Equal(t, tt.wantVel, r.nav.State().VelocitySnapshot().Dt)
		})
	}
}

func TestFirstCycleClampsToUpperBound(t *testing.T) {
	r := newRig(t, nil)
	r.cycle(0)
	assert.Equal(t, 0.005, r.vel.last("predict").dt)
	assert.Equal(t, 0.002, r.pos.last("predict").dt)
}

func TestElapsedTimeAlwaysWithinBounds(t *testing.T) {
	r := newRig(t, nil)
	steps := []time.Duration{0, 1, time.Microsecond, 700 * time.Microsecond, time.Millisecond, 4 * time.Millisecond, 9 * time.Millisecond, time.Second}
	for i := 0; i < 200; i++ {
		r.cycle(steps[i%len(steps)])
	}
	for _, c := range r.vel.calls {
		if c.op == "predict" {
			require.GreaterOrEqual(t, c.dt, 0.0005)
			require.LessOrEqual(t, c.dt, 0.005)
		}
	}
	for _, c := range r.pos.calls {
		if c.op == "predict" {
			require.GreaterOrEqual(t, c.dt, 0.0005)
			require.LessOrEqual(t, c.dt, 0.002)
		}
	}
}

func TestPredictPrecedesFuseOnFusionCyclesOnly(t *testing.T) {
	r := newRig(t, nil)
	const cycles = 200
	for i := 0; i < cycles; i++ {
		r.cycle(time.Millisecond)
	}

	for _, e := range []*recordingEngine{r.vel, r.pos} {
		ops := e.ops()
		cycle := -1
		for i, op := range ops {
			switch op {
			case "predict":
				cycle++
			case "fuse":
				require.Greater(t, i, 0)
				require.Equal(t, "predict", ops[i-1], "fuse must follow the cycle's predict")
				require.Equal(t, 0, cycle%40, "fuse on cycle %d", cycle)
			}
		}
		assert.Equal(t, cycles-1, cycle)
		assert.Equal(t, cycles/40, e.count("fuse"))
	}
}

func TestVelocityControlInput(t *testing.T) {
	r := newRig(t, nil)
	r.cycle(0)
	r.cycle(2 * time.Millisecond)

	u := r.vel.last("predict").u
	require.Len(t, u, 6)
	// specific force from the rig's IMU sample is (-6, -3, 1)
	assert.InDelta(t, -6*0.002, u[0], 1e-12)
	assert.InDelta(t, -3*0.002, u[1], 1e-12)
	assert.InDelta(t, 1*0.002, u[2], 1e-12)
	assert.Equal(t, []float64{0, 0, 0}, u[3:])

	v := r.nav.State().VelocitySnapshot()
	assert.Equal(t, Vector3{X: -6, Y: -3, Z: 1}, v.Accel)
}

func TestPositionIsDrivenByPublishedVelocity(t *testing.T) {
	r := newRig(t, nil)
	r.cycle(0)
	r.cycle(time.Millisecond)

	vel := r.nav.State().Velocity()
	u := r.pos.last("predict").u
	require.Len(t, u, 3)
	assert.InDelta(t, vel.X*0.001, u[0], 1e-15)
	assert.InDelta(t, vel.Y*0.001, u[1], 1e-15)
	assert.InDelta(t, vel.Z*0.001, u[2], 1e-15)
}

func TestFusionStagesMeasurements(t *testing.T) {
	r := newRig(t, nil)
	r.cycle(0)

	f := r.vel.last("fuse")
	assert.Equal(t, []float64{1, -2, 0.25, 0, 0.5, 0}, f.z)
	assert.Equal(t, []bool{true, true, true, false, false, false}, f.enabled)

	p := r.pos.last("fuse")
	assert.Equal(t, []float64{1.5, -2.5, 3}, p.z)
	assert.Equal(t, []bool{true, true, true}, p.enabled)

	s := r.nav.State()
	assert.Equal(t, [6]float64{1, -2, 0.25, 0, 0.5, 0}, s.VelocityMeasurement())
	assert.Equal(t, Vector3{X: 1.5, Y: -2.5, Z: 3}, s.PositionMeasurement())
}

func TestRangingDisabledOnFusionCycle(t *testing.T) {
	r := newRig(t, func(c *Config) {
		c.Velocity.ChannelsEnabled = []bool{true, true, true, false, true, false}
		c.RangingEnabled = true
	})
	r.cycle(0)
	assert.Equal(t, []bool{true, true, true, false, true, false}, r.vel.last("fuse").enabled)

	r.nav.SetRangingEnabled(false)
	for i := 0; i < 40; i++ {
		r.cycle(time.Millisecond)
	}
	assert.Equal(t, []bool{true, true, true, false, false, false}, r.vel.last("fuse").enabled)
	assert.False(t, r.nav.RangingEnabled())
}

func TestRangingSwitchUnderDefaultTuning(t *testing.T) {
	r := newRig(t, nil)
	require.False(t, r.nav.RangingEnabled())
	r.cycle(0)
	assert.False(t, r.vel.last("fuse").enabled[RangeVelZ])

	r.nav.SetRangingEnabled(true)
	for i := 0; i < 40; i++ {
		r.cycle(time.Millisecond)
	}
	require.Equal(t, 2, r.vel.count("fuse"))
	assert.Equal(t, []bool{true, true, true, false, true, false}, r.vel.last("fuse").enabled)

	r.nav.SetRangingEnabled(false)
	for i := 0; i < 40; i++ {
		r.cycle(time.Millisecond)
	}
	assert.False(t, r.vel.last("fuse").enabled[RangeVelZ])
}

func TestResetIsAppliedAtNextCycle(t *testing.T) {
	r := newRig(t, nil)
	r.vel.SetState([]float64{1, 2, 3, 0.1, 0.2, 0.3})
	r.cycle(0)

	r.nav.Reset()
	assert.Equal(t, 1, r.vel.count("set"), "reset waits for the task")

	r.cycle(time.Millisecond)
	set := r.vel.last("set").z
	assert.Equal(t, []float64{0, 0, 0, 0.1, 0.2, 0.3}, set, "velocity zeroed, bias kept")
	assert.Equal(t, []float64{1.5, -2.5, 3}, r.pos.last("set").z)

	ops := r.pos.ops()
	assert.Equal(t, "predict", ops[len(ops)-1], "reset happens before the cycle's predict")

	r.cycle(time.Millisecond)
	assert.Equal(t, 2, r.vel.count("set"), "reset is applied once")
}

func TestResetNowPublishesState(t *testing.T) {
	r := newRig(t, nil)
	for i := 0; i < 5; i++ {
		r.cycle(time.Millisecond)
	}
	r.store.PutFlow(sensors.FlowSample{PosX: 7, PosY: 8, Valid: true})
	r.store.PutBaro(sensors.BaroSample{Height: 9, Valid: true})

	r.nav.ResetNow()

	s := r.nav.State()
	assert.Equal(t, Vector3{X: 7, Y: 8, Z: 9}, s.Position())
	assert.Equal(t, Vector3{}, s.Velocity())
}

func TestResetKeepsEstimateForInvalidSources(t *testing.T) {
	r := newRig(t, nil)
	r.pos.SetState([]float64{4, 5, 6})
	r.store.PutFlow(sensors.FlowSample{Quality: 3})
	r.store.PutBaro(sensors.BaroSample{Height: 2, Valid: true})

	r.nav.ResetNow()
	assert.Equal(t, []float64{4, 5, 2}, r.pos.last("set").z, "x/y kept, height reseeded")

	r.store.PutFlow(sensors.FlowSample{PosX: 1, PosY: 1, Valid: true})
	r.store.PutBaro(sensors.BaroSample{})
	r.nav.ResetNow()
	assert.Equal(t, []float64{1, 1, 2}, r.pos.last("set").z, "x/y reseeded, height kept")
}

func TestResetKeepsCovariance(t *testing.T) {
	store := sensors.NewStore(0)
	store.PutFlow(sensors.FlowSample{VelX: 0.1, PosX: 1, PosY: 2, Quality: 1, Valid: true})
	store.PutBaro(sensors.BaroSample{Height: 3, Valid: true})
	clock := timeutil.NewMockClock(testEpoch)

	nav, err := New(DefaultConfig(), store, clock)
	require.NoError(t, err)
	for i := 0; i < 90; i++ {
		clock.Advance(time.Millisecond)
		nav.VelocityTask()
		nav.PositionTask()
	}

	vf := nav.velocity.engine.(*kalman.Filter)
	pf := nav.position.engine.(*kalman.Filter)
	vCov, pCov := vf.Covariance(), pf.Covariance()
	bias := vf.State()[3:]

	nav.ResetNow()

	assert.True(t, mat.Equal(vCov, vf.Covariance()))
	assert.True(t, mat.Equal(pCov, pf.Covariance()))
	assert.Equal(t, []float64{1, 2, 3}, pf.State())
	assert.Equal(t, []float64{0, 0, 0}, vf.State()[:3])
	assert.Equal(t, bias, vf.State()[3:])
	assert.Equal(t, 250, vf.HistoryDepth())
	assert.Equal(t, 100, pf.Delay(2))
}

// lockstepEngine sets every state component to the same value on each
// prediction, so a snapshot mixing two cycles is detectable.
type lockstepEngine struct {
	n int
	v float64
}

func (e *lockstepEngine) Predict([]float64, float64) { e.v++ }
func (e *lockstepEngine) Fuse([]float64, []bool)     {}
func (e *lockstepEngine) SetState([]float64)         {}
func (e *lockstepEngine) State() []float64 {
	x := make([]float64, e.n)
	for i := range x {
		x[i] = e.v
	}
	return x
}

func TestReadersNeverSeeMixedCycles(t *testing.T) {
	store := sensors.NewStore(0)
	nav, err := NewWithEngines(DefaultConfig(), store, timeutil.NewMockClock(testEpoch),
		&lockstepEngine{n: 6}, &lockstepEngine{n: 3})
	require.NoError(t, err)

	var stop atomic.Bool
	var torn atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				s := nav.State().Snapshot()
				v := s.Velocity
				if v.Velocity.X != v.Velocity.Y || v.Velocity.Y != v.Velocity.Z || v.Velocity.X != v.AccelBias.Z {
					torn.Add(1)
				}
				p := s.Position.Position
				if p.X != p.Y || p.Y != p.Z {
					torn.Add(1)
				}
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			nav.VelocityTask()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			nav.PositionTask()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	stop.Store(true)
	wg.Wait()
	assert.Zero(t, torn.Load())
	assert.Equal(t, 2000.0, nav.State().Velocity().X)
}

func TestHealth(t *testing.T) {
	r := newRig(t, func(c *Config) { c.DeadReckoningTimeout = 100 * time.Millisecond })
	assert.False(t, r.nav.Health().Ready)

	r.cycle(0)
	h := r.nav.Health()
	assert.True(t, h.Ready)
	assert.Equal(t, uint64(1), h.VelocityFusions)
	assert.Equal(t, uint64(1), h.PositionFusions)
	assert.False(t, h.DeadReckoning)

	// lose every velocity aid
	r.store.PutFlow(sensors.FlowSample{})
	r.store.PutBaro(sensors.BaroSample{})
	for i := 0; i < 150; i++ {
		r.cycle(time.Millisecond)
	}
	h = r.nav.Health()
	assert.True(t, h.DeadReckoning)
	assert.Equal(t, testEpoch, h.LastAided)

	r.store.PutBaro(sensors.BaroSample{Valid: true})
	for i := 0; i < 40; i++ {
		r.cycle(time.Millisecond)
	}
	assert.False(t, r.nav.Health().DeadReckoning)
}

func TestNewRejectsBadConfig(t *testing.T) {
	store := sensors.NewStore(0)
	clock := timeutil.NewMockClock(testEpoch)

	cfg := DefaultConfig()
	cfg.Velocity.DecimationRatio = 0
	_, err := New(cfg, store, clock)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Position.MaxDt = 0
	_, err = New(cfg, store, clock)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Position.Delays = []int{20, 20, 300}
	_, err = New(cfg, store, clock)
	assert.ErrorIs(t, err, kalman.ErrDimension)

	_, err = New(DefaultConfig(), nil, clock)
	assert.Error(t, err)
}

func TestRunnerDrivesTasks(t *testing.T) {
	r := newRig(t, nil)
	runner := NewRunner(r.nav, r.clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		r.clock.Advance(time.Millisecond)
		return r.vel.count("predict") >= 3 && r.pos.count("predict") >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
