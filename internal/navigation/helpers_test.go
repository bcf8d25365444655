package navigation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type engineCall struct {
	op      string // "predict", "fuse" or "set"
	u       []float64
	dt      float64
	z       []float64
	enabled []bool
}

// recordingEngine is an Engine that integrates the control input directly
// into the state and records every call.
type recordingEngine struct {
	mu    sync.Mutex
	x     []float64
	calls []engineCall
}

func newRecordingEngine(n int) *recordingEngine {
	return &recordingEngine{x: make([]float64, n)}
}

func (e *recordingEngine) Predict(u []float64, dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.x {
		if i < len(u) {
			e.x[i] += u[i]
		}
	}
	e.calls = append(e.calls, engineCall{op: "predict", u: append([]float64(nil), u...), dt: dt})
}

func (e *recordingEngine) Fuse(z []float64, enabled []bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, engineCall{op: "fuse", z: append([]float64(nil), z...), enabled: append([]bool(nil), enabled...)})
}

func (e *recordingEngine) State() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.x...)
}

func (e *recordingEngine) SetState(x []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copy(e.x, x)
	e.calls = append(e.calls, engineCall{op: "set", z: append([]float64(nil), x...)})
}

func (e *recordingEngine) ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.op
	}
	return out
}

func (e *recordingEngine) last(op string) engineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.calls) - 1; i >= 0; i-- {
		if e.calls[i].op == op {
			return e.calls[i]
		}
	}
	return engineCall{}
}

func (e *recordingEngine) count(op string) int {
	n := 0
	for _, o := range e.ops() {
		if o == op {
			n++
		}
	}
	return n
}

// rig is a navigator on recording engines, a mock clock and a sensor store
// holding valid samples.
type rig struct {
	nav   *Navigator
	vel   *recordingEngine
	pos   *recordingEngine
	store *sensors.Store
	clock *timeutil.MockClock
}

func newRig(t *testing.T, mutate func(*Config)) *rig {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(original) })

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	r := &rig{
		vel:   newRecordingEngine(6),
		pos:   newRecordingEngine(3),
		store: sensors.NewStore(0),
		clock: timeutil.NewMockClock(testEpoch),
	}
	r.store.PutIMU(sensors.IMUSample{HorizontalAccel: [3]float64{2, 4, 0}, WorldAccel: [3]float64{0, 0, 1000}})
	r.store.PutFlow(sensors.FlowSample{VelX: 0.1, VelY: -0.2, PosX: 1.5, PosY: -2.5, Quality: 200, Valid: true})
	r.store.PutBaro(sensors.BaroSample{Height: 3, VerticalVelocity: 0.25, Valid: true})
	r.store.PutRange(sensors.RangeSample{Distance: 1, VerticalVelocity: 0.5, Valid: true})

	nav, err := NewWithEngines(cfg, r.store, r.clock, r.vel, r.pos)
	require.NoError(t, err)
	r.nav = nav
	return r
}

// cycle advances the clock by dt and runs both tasks once.
func (r *rig) cycle(dt time.Duration) {
	r.clock.Advance(dt)
	r.nav.VelocityTask()
	r.nav.PositionTask()
}
