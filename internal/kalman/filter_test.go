package kalman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/navfusion/internal/monitoring"
)

func eye(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func scalar(v float64) *mat.Dense { return mat.NewDense(1, 1, []float64{v}) }

// newScalarFilter returns a one-state, one-channel random walk driven by u.
func newScalarFilter(t *testing.T, p0, q, r float64, depth int) *Filter {
	t.Helper()
	f := New("test", 1, 1)
	require.NoError(t, f.Configure(Matrices{
		Q: scalar(q), R: scalar(r), P0: scalar(p0),
		F: scalar(1), H: scalar(1), B: scalar(1),
	}))
	require.NoError(t, f.SetHistoryDepth(depth))
	return f
}

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func TestDense(t *testing.T) {
	d, err := Dense([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	r, c := d.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 6.0, d.At(2, 1))

	_, err = Dense([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrDimension)

	_, err = Dense(nil)
	assert.ErrorIs(t, err, ErrDimension)
}

func TestConfigureRejectsBadShapes(t *testing.T) {
	good := Matrices{Q: eye(2), R: eye(1), P0: eye(2), F: eye(2), H: mat.NewDense(1, 2, []float64{1, 0}), B: eye(2)}

	tests := []struct {
		name   string
		mutate func(m *Matrices)
	}{
		{"Q wrong size", func(m *Matrices) { m.Q = eye(3) }},
		{"R wrong size", func(m *Matrices) { m.R = eye(2) }},
		{"H wrong columns", func(m *Matrices) { m.H = eye(1) }},
		{"F missing", func(m *Matrices) { m.F = nil }},
		{"B wrong rows", func(m *Matrices) { m.B = eye(3) }},
		{"FRate wrong size", func(m *Matrices) { m.FRate = eye(1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := good
			tt.mutate(&m)
			err := New("test", 2, 1).Configure(m)
			assert.ErrorIs(t, err, ErrDimension)
		})
	}

	assert.NoError(t, New("test", 2, 1).Configure(good))
}

func TestDelayConfiguration(t *testing.T) {
	f := newScalarFilter(t, 1, 0, 1, 10)

	require.NoError(t, f.SetDelayCompensation(0, 9))
	assert.Equal(t, 9, f.Delay(0))
	assert.ErrorIs(t, f.SetDelayCompensation(0, 10), ErrDimension)
	assert.ErrorIs(t, f.SetDelayCompensation(1, 0), ErrDimension)

	// Shrinking the history below a configured delay is refused.
	assert.ErrorIs(t, f.SetHistoryDepth(5), ErrDimension)
	assert.Equal(t, 10, f.HistoryDepth())
	assert.ErrorIs(t, f.SetHistoryDepth(0), ErrDimension)
}

func TestPredictIntegratesControl(t *testing.T) {
	f := newScalarFilter(t, 1, 0.5, 1, 4)

	f.Predict([]float64{2}, 0.001)
	f.Predict([]float64{3}, 0.001)

	assert.InDelta(t, 5.0, f.State()[0], 1e-12)
	assert.InDelta(t, 2.0, f.Covariance().At(0, 0), 1e-12, "Q is added once per prediction")
}

func TestPredictRateCoupledTransition(t *testing.T) {
	// velocity and bias: v' = v - bias*dt
	f := New("vel", 2, 1)
	require.NoError(t, f.Configure(Matrices{
		Q:     mat.NewDense(2, 2, nil),
		R:     eye(1),
		P0:    eye(2),
		F:     eye(2),
		FRate: mat.NewDense(2, 2, []float64{0, -1, 0, 0}),
		H:     mat.NewDense(1, 2, []float64{1, 0}),
		B:     mat.NewDense(2, 1, []float64{1, 0}),
	}))
	require.NoError(t, f.SetHistoryDepth(2))
	f.SetState([]float64{0, 2})

	f.Predict([]float64{0}, 0.5)

	assert.InDelta(t, -1.0, f.State()[0], 1e-12)
	assert.InDelta(t, 2.0, f.State()[1], 1e-12)
	// the transition couples the covariance: P01 = -dt*P11
	assert.InDelta(t, -0.5, f.Covariance().At(0, 1), 1e-12)
}

func TestFuseMovesTowardsMeasurement(t *testing.T) {
	f := newScalarFilter(t, 1, 0, 1, 4)
	f.Predict([]float64{0}, 0.001)

	f.Fuse([]float64{2}, []bool{true})

	assert.InDelta(t, 1.0, f.State()[0], 1e-12)
	assert.InDelta(t, 0.5, f.Covariance().At(0, 0), 1e-12)
}

func TestFuseIgnoresDisabledChannels(t *testing.T) {
	f := New("two", 2, 2)
	require.NoError(t, f.Configure(Matrices{
		Q: mat.NewDense(2, 2, nil), R: eye(2), P0: eye(2), F: eye(2), H: eye(2), B: eye(2),
	}))
	require.NoError(t, f.SetHistoryDepth(2))
	f.Predict([]float64{0, 0}, 0.001)

	f.Fuse([]float64{10, 10}, []bool{false, true})

	x := f.State()
	assert.Equal(t, 0.0, x[0], "disabled channel must not move its state")
	assert.InDelta(t, 5.0, x[1], 1e-12)
	assert.InDelta(t, 1.0, f.Covariance().At(0, 0), 1e-12)

	before := f.State()
	f.Fuse([]float64{100, 100}, []bool{false, false})
	assert.Equal(t, before, f.State())
}

func TestFuseUsesDelayedState(t *testing.T) {
	f := newScalarFilter(t, 1, 0, 1, 10)
	require.NoError(t, f.SetDelayCompensation(0, 3))

	for i := 0; i < 5; i++ {
		f.Predict([]float64{1}, 0.001)
	}
	require.InDelta(t, 5.0, f.State()[0], 1e-12)

	// The sensor saw the state from three cycles ago (2), so a reading of
	// 2 carries no innovation.
	f.Fuse([]float64{2}, []bool{true})
	assert.InDelta(t, 5.0, f.State()[0], 1e-12)

	// Without compensation the same reading pulls the state back.
	g := newScalarFilter(t, 1, 0, 1, 10)
	for i := 0; i < 5; i++ {
		g.Predict([]float64{1}, 0.001)
	}
	g.Fuse([]float64{2}, []bool{true})
	assert.Less(t, g.State()[0], 5.0)
}

func TestFuseShiftsHistory(t *testing.T) {
	f := newScalarFilter(t, 1, 0, 1, 10)
	require.NoError(t, f.SetDelayCompensation(0, 2))
	for i := 0; i < 3; i++ {
		f.Predict([]float64{1}, 0.001)
	}

	// innovation 4 - 1 = 3, gain 0.5
	f.Fuse([]float64{4}, []bool{true})

	assert.InDelta(t, 4.5, f.State()[0], 1e-12)
	assert.InDelta(t, 4.5, f.history.at(0)[0], 1e-12)
	assert.InDelta(t, 3.5, f.history.at(1)[0], 1e-12)
	assert.InDelta(t, 2.5, f.history.at(2)[0], 1e-12)
}

func TestFuseSkipsSingularInnovation(t *testing.T) {
	muteLogs(t)
	f := newScalarFilter(t, 0, 0, 0, 2)
	f.Predict([]float64{1}, 0.001)

	f.Fuse([]float64{10}, []bool{true})

	assert.InDelta(t, 1.0, f.State()[0], 1e-12)
}

func TestSetStateKeepsCovariance(t *testing.T) {
	f := newScalarFilter(t, 3, 0.25, 1, 5)
	f.Predict([]float64{1}, 0.001)
	pBefore := f.Covariance().At(0, 0)

	f.SetState([]float64{7})

	assert.Equal(t, []float64{7}, f.State())
	assert.Equal(t, pBefore, f.Covariance().At(0, 0))
	for age := 0; age < 5; age++ {
		assert.Equal(t, 7.0, f.history.at(age)[0])
	}
}

func TestDimensionPanics(t *testing.T) {
	f := newScalarFilter(t, 1, 0, 1, 2)
	assert.Panics(t, func() { f.Predict([]float64{1, 2}, 0.001) })
	assert.Panics(t, func() { f.Fuse([]float64{1, 2}, []bool{true}) })
	assert.Panics(t, func() { f.SetState([]float64{1, 2}) })
}
