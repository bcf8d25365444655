package navigation

import (
	"sync/atomic"
	"time"
)

// VelocitySnapshot is everything the velocity task publishes in one cycle.
type VelocitySnapshot struct {
	Cycle uint64
	Time  time.Time
	Dt    time.Duration // clamped elapsed time used by the prediction
	Fused bool          // a measurement update ran this cycle

	Accel       Vector3
	AccelBias   Vector3
	Velocity    Vector3
	Measurement [VelocityChannelCount]float64
	Enabled     [VelocityChannelCount]bool
}

// PositionSnapshot is everything the position task publishes in one cycle.
type PositionSnapshot struct {
	Cycle uint64
	Time  time.Time
	Dt    time.Duration
	Fused bool

	Position    Vector3
	Measurement Vector3
	Enabled     [PositionChannelCount]bool
}

// Snapshot is the combined navigation state. The two halves may come from
// different cycles of their tasks, but each half is internally consistent.
type Snapshot struct {
	Velocity VelocitySnapshot
	Position PositionSnapshot
}

// State is the process-wide navigation state. The velocity group is written
// only by the velocity task and the position group only by the position
// task; readers may call any accessor from any goroutine.
type State struct {
	vel atomic.Pointer[VelocitySnapshot]
	pos atomic.Pointer[PositionSnapshot]
}

// NewState returns a State holding zero snapshots.
func NewState() *State {
	s := &State{}
	s.vel.Store(&VelocitySnapshot{})
	s.pos.Store(&PositionSnapshot{})
	return s
}

func (s *State) publishVelocity(v VelocitySnapshot) { s.vel.Store(&v) }
func (s *State) publishPosition(p PositionSnapshot) { s.pos.Store(&p) }

// VelocitySnapshot returns the latest velocity group.
func (s *State) VelocitySnapshot() VelocitySnapshot { return *s.vel.Load() }

// PositionSnapshot returns the latest position group.
func (s *State) PositionSnapshot() PositionSnapshot { return *s.pos.Load() }

// Snapshot returns both groups.
func (s *State) Snapshot() Snapshot {
	return Snapshot{Velocity: *s.vel.Load(), Position: *s.pos.Load()}
}

// Accel returns the navigation-frame specific force of the last velocity cycle.
func (s *State) Accel() Vector3 { return s.vel.Load().Accel }

// AccelBias returns the estimated accelerometer bias.
func (s *State) AccelBias() Vector3 { return s.vel.Load().AccelBias }

// Velocity returns the estimated velocity.
func (s *State) Velocity() Vector3 { return s.vel.Load().Velocity }

// VelocityMeasurement returns the most recently staged velocity measurement.
func (s *State) VelocityMeasurement() [VelocityChannelCount]float64 {
	return s.vel.Load().Measurement
}

// Position returns the estimated position.
func (s *State) Position() Vector3 { return s.pos.Load().Position }

// PositionMeasurement returns the most recently staged position measurement.
func (s *State) PositionMeasurement() Vector3 { return s.pos.Load().Measurement }
