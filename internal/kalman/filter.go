package kalman

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/navfusion/internal/monitoring"
)

// ErrDimension is returned when a matrix or parameter does not fit the
// filter's state or measurement dimension.
var ErrDimension = errors.New("kalman: dimension mismatch")

// Matrices is the complete model of a filter. FRate may be nil; when set,
// the transition used by each prediction is F + FRate*dt.
type Matrices struct {
	Q     mat.Matrix // process noise (n×n), added once per prediction
	R     mat.Matrix // measurement noise (m×m)
	P0    mat.Matrix // initial covariance (n×n)
	F     mat.Matrix // state transition (n×n)
	FRate mat.Matrix // elapsed-time scaled transition (n×n), optional
	H     mat.Matrix // observation (m×n)
	B     mat.Matrix // control (n×k)
}

// Filter is a delay-compensated linear Kalman filter. It is not safe for
// concurrent use; each estimator task owns exactly one Filter.
type Filter struct {
	n, m, k int

	x *mat.VecDense
	p *mat.Dense

	q, r, f, fRate, h, b *mat.Dense
	eye                  *mat.Dense

	delays  []int
	history *history

	skipped *monitoring.Limiter
	label   string
}

// New returns an unconfigured filter with n states and m measurement
// channels. The history depth starts at one cycle and every delay at zero.
func New(label string, n, m int) *Filter {
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1)
	}
	return &Filter{
		n:       n,
		m:       m,
		x:       mat.NewVecDense(n, nil),
		p:       mat.NewDense(n, n, nil),
		eye:     eye,
		delays:  make([]int, m),
		history: newHistory(1, n),
		skipped: monitoring.NewLimiter(100),
		label:   label,
	}
}

// Dense builds a matrix from row-major nested slices.
func Dense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrDimension)
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}

// Configure installs the model matrices and resets the covariance to P0.
// The state vector and history are left untouched.
func (f *Filter) Configure(ms Matrices) error {
	check := func(name string, m mat.Matrix, r, c int) (*mat.Dense, error) {
		if m == nil {
			return nil, fmt.Errorf("%w: %s is required", ErrDimension, name)
		}
		mr, mc := m.Dims()
		if mr != r || (c >= 0 && mc != c) {
			return nil, fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrDimension, name, mr, mc, r, c)
		}
		return mat.DenseCopyOf(m), nil
	}

	q, err := check("Q", ms.Q, f.n, f.n)
	if err != nil {
		return err
	}
	r, err := check("R", ms.R, f.m, f.m)
	if err != nil {
		return err
	}
	p0, err := check("P0", ms.P0, f.n, f.n)
	if err != nil {
		return err
	}
	tf, err := check("F", ms.F, f.n, f.n)
	if err != nil {
		return err
	}
	h, err := check("H", ms.H, f.m, f.n)
	if err != nil {
		return err
	}
	b, err := check("B", ms.B, f.n, -1)
	if err != nil {
		return err
	}
	var fRate *mat.Dense
	if ms.FRate != nil {
		if fRate, err = check("FRate", ms.FRate, f.n, f.n); err != nil {
			return err
		}
	}

	f.q, f.r, f.p, f.f, f.h, f.b, f.fRate = q, r, p0, tf, h, b, fRate
	_, f.k = b.Dims()
	return nil
}

// SetHistoryDepth resizes the history to hold the given number of predicted
// states. Every configured delay must stay below the depth. The new history
// is seeded with the current state.
func (f *Filter) SetHistoryDepth(cycles int) error {
	if cycles < 1 {
		return fmt.Errorf("%w: history depth %d must be positive", ErrDimension, cycles)
	}
	for ch, d := range f.delays {
		if d >= cycles {
			return fmt.Errorf("%w: channel %d delay %d does not fit history depth %d", ErrDimension, ch, d, cycles)
		}
	}
	f.history = newHistory(cycles, f.n)
	f.history.push(f.x.RawVector().Data)
	return nil
}

// SetDelayCompensation sets the latency of one measurement channel in
// scheduler cycles.
func (f *Filter) SetDelayCompensation(channel, cycles int) error {
	if channel < 0 || channel >= f.m {
		return fmt.Errorf("%w: channel %d out of range [0, %d)", ErrDimension, channel, f.m)
	}
	if cycles < 0 || cycles >= f.history.depth() {
		return fmt.Errorf("%w: delay %d must be in [0, %d)", ErrDimension, cycles, f.history.depth())
	}
	f.delays[channel] = cycles
	return nil
}

// Predict advances the state with control input u over dt seconds:
// x = Fk·x + B·u, P = Fk·P·Fkᵀ + Q, where Fk = F + FRate·dt.
func (f *Filter) Predict(u []float64, dt float64) {
	if len(u) != f.k {
		panic(fmt.Sprintf("kalman %s: control has %d elements, want %d", f.label, len(u), f.k))
	}

	fk := f.f
	if f.fRate != nil {
		var scaled mat.Dense
		scaled.Scale(dt, f.fRate)
		scaled.Add(f.f, &scaled)
		fk = &scaled
	}

	var nx mat.VecDense
	nx.MulVec(fk, f.x)
	if f.k > 0 {
		var bu mat.VecDense
		bu.MulVec(f.b, mat.NewVecDense(f.k, append([]float64(nil), u...)))
		nx.AddVec(&nx, &bu)
	}
	f.x = &nx

	var fp, np mat.Dense
	fp.Mul(fk, f.p)
	np.Mul(&fp, fk.T())
	np.Add(&np, f.q)
	f.p = &np

	f.history.push(f.x.RawVector().Data)
}

// Fuse applies the measurement z for every channel whose enabled flag is
// set. Channel innovations use the state recorded at that channel's delay.
func (f *Filter) Fuse(z []float64, enabled []bool) {
	if len(z) != f.m || len(enabled) != f.m {
		panic(fmt.Sprintf("kalman %s: measurement has %d values and %d flags, want %d", f.label, len(z), len(enabled), f.m))
	}

	rows := make([]int, 0, f.m)
	for i, on := range enabled {
		if on {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return
	}
	k := len(rows)

	hs := mat.NewDense(k, f.n, nil)
	rs := mat.NewDense(k, k, nil)
	y := mat.NewVecDense(k, nil)
	for a, i := range rows {
		hs.SetRow(a, mat.Row(nil, i, f.h))
		for b, j := range rows {
			rs.Set(a, b, f.r.At(i, j))
		}

		past := f.history.at(f.delays[i])
		if past == nil {
			past = f.x.RawVector().Data
		}
		predicted := mat.Dot(hs.RowView(a), mat.NewVecDense(f.n, past))
		y.SetVec(a, z[i]-predicted)
	}

	var ph, s, sInv mat.Dense
	ph.Mul(f.p, hs.T())
	s.Mul(hs, &ph)
	s.Add(&s, rs)
	if err := sInv.Inverse(&s); err != nil {
		if f.skipped.Allow() {
			monitoring.Logf("[kalman] %s: skipping update over channels %v: %v (skipped %d)", f.label, rows, err, f.skipped.Count())
		}
		return
	}

	var gain mat.Dense
	gain.Mul(&ph, &sInv)

	var dx mat.VecDense
	dx.MulVec(&gain, y)
	for i := 0; i < f.n; i++ {
		if math.IsNaN(dx.AtVec(i)) || math.IsInf(dx.AtVec(i), 0) {
			if f.skipped.Allow() {
				monitoring.Logf("[kalman] %s: skipping non-finite correction (skipped %d)", f.label, f.skipped.Count())
			}
			return
		}
	}
	f.x.AddVec(f.x, &dx)

	var kh, ikh, np mat.Dense
	kh.Mul(&gain, hs)
	ikh.Sub(f.eye, &kh)
	np.Mul(&ikh, f.p)
	f.p = &np

	delta := make([]float64, f.n)
	for i := range delta {
		delta[i] = dx.AtVec(i)
	}
	f.history.shift(delta)
}

// State returns a copy of the current state vector.
func (f *Filter) State() []float64 {
	out := make([]float64, f.n)
	for i := range out {
		out[i] = f.x.AtVec(i)
	}
	return out
}

// SetState overwrites the state vector and seeds the whole history with it.
// Covariance and configuration are left unchanged.
func (f *Filter) SetState(x []float64) {
	if len(x) != f.n {
		panic(fmt.Sprintf("kalman %s: state has %d elements, want %d", f.label, len(x), f.n))
	}
	f.x = mat.NewVecDense(f.n, append([]float64(nil), x...))
	f.history.fill(x)
}

// Covariance returns a copy of the current covariance matrix.
func (f *Filter) Covariance() *mat.Dense {
	return mat.DenseCopyOf(f.p)
}

// Delay returns the configured delay of a channel.
func (f *Filter) Delay(channel int) int {
	return f.delays[channel]
}

// HistoryDepth returns the number of predicted states the filter retains.
func (f *Filter) HistoryDepth() int {
	return f.history.depth()
}
