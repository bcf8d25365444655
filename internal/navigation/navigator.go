package navigation

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// Navigator owns both estimators and the State they publish to.
//
// VelocityTask and PositionTask must each be called from a single goroutine
// (they may be different goroutines). Every other method is safe to call
// from anywhere.
type Navigator struct {
	cfg   Config
	src   sensors.Source
	clock timeutil.Clock
	state *State

	velocity *VelocityEstimator
	position *PositionEstimator

	resetVelocity atomic.Bool
	resetPosition atomic.Bool
	ranging       atomic.Bool

	velocityFusions atomic.Uint64
	positionFusions atomic.Uint64
	lastAided       atomic.Int64 // unix nanos of the last aided velocity fusion
}

// New builds both estimators on kalman filters configured from cfg. It is
// the one-time initialisation entry point; estimators are never resized.
func New(cfg Config, src sensors.Source, clock timeutil.Clock) (*Navigator, error) {
	vel, err := NewFilter("velocity", cfg.Velocity, config.VelocityStates, config.VelocityChannels)
	if err != nil {
		return nil, err
	}
	pos, err := NewFilter("position", cfg.Position, config.PositionStates, config.PositionChannels)
	if err != nil {
		return nil, err
	}
	return NewWithEngines(cfg, src, clock, vel, pos)
}

// NewWithEngines builds a Navigator around caller-supplied engines.
func NewWithEngines(cfg Config, src sensors.Source, clock timeutil.Clock, velocity, position Engine) (*Navigator, error) {
	if src == nil || clock == nil {
		return nil, fmt.Errorf("navigator needs a sensor source and a clock")
	}
	adapter := NewAdapter(cfg.Adapter)

	ve, err := NewVelocityEstimator(velocity, adapter, cfg.Velocity, cfg.RangeMinM, cfg.RangeMaxM, clock)
	if err != nil {
		return nil, err
	}
	pe, err := NewPositionEstimator(position, adapter, cfg.Position, clock)
	if err != nil {
		return nil, err
	}

	n := &Navigator{
		cfg:      cfg,
		src:      src,
		clock:    clock,
		state:    NewState(),
		velocity: ve,
		position: pe,
	}
	n.ranging.Store(cfg.RangingEnabled)
	return n, nil
}

// State returns the navigation state store.
func (n *Navigator) State() *State { return n.state }

// Config returns the configuration the navigator was built with.
func (n *Navigator) Config() Config { return n.cfg }

// VelocityTask runs one velocity cycle and publishes the result.
func (n *Navigator) VelocityTask() {
	in := ReadSamples(n.src)
	if n.resetVelocity.CompareAndSwap(true, false) {
		n.velocity.Reset()
	}

	snap := n.velocity.Step(in, n.ranging.Load())
	n.state.publishVelocity(snap)

	if snap.Fused {
		n.velocityFusions.Add(1)
		if anyEnabled(snap.Enabled[:]) {
			n.lastAided.Store(snap.Time.UnixNano())
		}
	}
	// dead-reckoning time counts from the first cycle
	n.lastAided.CompareAndSwap(0, snap.Time.UnixNano())
}

// PositionTask runs one position cycle using the most recently published
// velocity as its control input.
func (n *Navigator) PositionTask() {
	in := ReadSamples(n.src)
	if n.resetPosition.CompareAndSwap(true, false) {
		n.position.Reset(in)
	}

	snap := n.position.Step(in, n.state.Velocity())
	n.state.publishPosition(snap)

	if snap.Fused {
		n.positionFusions.Add(1)
	}
}

// Reset asks both tasks to re-initialise their state vectors at the start
// of their next cycle: velocity to zero with the bias kept, position to the
// latest integrated flow and height. Covariance and configuration are not
// touched.
func (n *Navigator) Reset() {
	n.resetVelocity.Store(true)
	n.resetPosition.Store(true)
}

// ResetNow applies a reset immediately and republishes the state. It must
// not run concurrently with either task.
func (n *Navigator) ResetNow() {
	n.resetVelocity.Store(false)
	n.resetPosition.Store(false)
	in := ReadSamples(n.src)

	n.velocity.Reset()
	n.position.Reset(in)

	v := n.state.VelocitySnapshot()
	x := n.velocity.engine.State()
	v.Velocity = Vector3{X: x[0], Y: x[1], Z: x[2]}
	v.AccelBias = Vector3{X: x[3], Y: x[4], Z: x[5]}
	n.state.publishVelocity(v)

	p := n.state.PositionSnapshot()
	x = n.position.engine.State()
	p.Position = Vector3{X: x[0], Y: x[1], Z: x[2]}
	n.state.publishPosition(p)
}

// SetRangingEnabled switches the runtime ranging gate.
func (n *Navigator) SetRangingEnabled(on bool) { n.ranging.Store(on) }

// RangingEnabled reports the runtime ranging gate.
func (n *Navigator) RangingEnabled() bool { return n.ranging.Load() }

// Health summarises estimator progress for health checks.
type Health struct {
	VelocityFusions uint64
	PositionFusions uint64
	LastAided       time.Time // last velocity fusion with at least one channel enabled
	// Ready is set once both estimators have completed a fusion cycle.
	Ready bool
	// DeadReckoning is set when no velocity channel has been fused for
	// longer than the dead-reckoning timeout.
	DeadReckoning bool
}

// Health returns the current health summary.
func (n *Navigator) Health() Health {
	h := Health{
		VelocityFusions: n.velocityFusions.Load(),
		PositionFusions: n.positionFusions.Load(),
	}
	h.Ready = h.VelocityFusions > 0 && h.PositionFusions > 0
	if last := n.lastAided.Load(); last != 0 {
		h.LastAided = time.Unix(0, last).UTC()
		h.DeadReckoning = n.clock.Now().Sub(h.LastAided) > n.cfg.DeadReckoningTimeout
	}
	return h
}

func anyEnabled(flags []bool) bool {
	for _, on := range flags {
		if on {
			return true
		}
	}
	return false
}
