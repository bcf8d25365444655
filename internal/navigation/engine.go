package navigation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/kalman"
)

// Engine is the linear filter an estimator drives. *kalman.Filter is the
// production implementation.
type Engine interface {
	Predict(u []float64, dt float64)
	Fuse(z []float64, enabled []bool)
	State() []float64
	SetState(x []float64)
}

var _ Engine = (*kalman.Filter)(nil)

// NewFilter builds and configures a kalman.Filter from resolved estimator
// settings. The history depth is set before the per-channel delays so every
// delay fits.
func NewFilter(label string, s config.EstimatorSettings, states, channels int) (*kalman.Filter, error) {
	var ms kalman.Matrices
	for _, m := range []struct {
		name string
		rows [][]float64
		set  func(d *mat.Dense)
	}{
		{"q", s.Q, func(d *mat.Dense) { ms.Q = d }},
		{"r", s.R, func(d *mat.Dense) { ms.R = d }},
		{"p0", s.P0, func(d *mat.Dense) { ms.P0 = d }},
		{"f", s.F, func(d *mat.Dense) { ms.F = d }},
		{"h", s.H, func(d *mat.Dense) { ms.H = d }},
		{"b", s.B, func(d *mat.Dense) { ms.B = d }},
		{"f_rate", s.FRate, func(d *mat.Dense) { ms.FRate = d }},
	} {
		if m.name == "f_rate" && len(m.rows) == 0 {
			continue
		}
		d, err := kalman.Dense(m.rows)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", label, m.name, err)
		}
		m.set(d)
	}

	filter := kalman.New(label, states, channels)
	if err := filter.Configure(ms); err != nil {
		return nil, fmt.Errorf("configure %s filter: %w", label, err)
	}
	if err := filter.SetHistoryDepth(s.HistoryDepth); err != nil {
		return nil, fmt.Errorf("%s history: %w", label, err)
	}
	for ch, d := range s.Delays {
		if err := filter.SetDelayCompensation(ch, d); err != nil {
			return nil, fmt.Errorf("%s delay: %w", label, err)
		}
	}
	return filter, nil
}
