package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateAccessors(t *testing.T) {
	s := NewState()
	assert.Equal(t, Snapshot{}, s.Snapshot())

	s.publishVelocity(VelocitySnapshot{
		Cycle:       7,
		Accel:       Vector3{X: 1},
		AccelBias:   Vector3{Y: 2},
		Velocity:    Vector3{Z: 3},
		Measurement: [VelocityChannelCount]float64{4, 5, 6},
	})
	s.publishPosition(PositionSnapshot{
		Cycle:       9,
		Position:    Vector3{X: 7, Y: 8, Z: 9},
		Measurement: Vector3{X: 10},
	})

	assert.Equal(t, Vector3{X: 1}, s.Accel())
	assert.Equal(t, Vector3{Y: 2}, s.AccelBias())
	assert.Equal(t, Vector3{Z: 3}, s.Velocity())
	assert.Equal(t, [VelocityChannelCount]float64{4, 5, 6}, s.VelocityMeasurement())
	assert.Equal(t, Vector3{X: 7, Y: 8, Z: 9}, s.Position())
	assert.Equal(t, Vector3{X: 10}, s.PositionMeasurement())

	snap := s.Snapshot()
	assert.Equal(t, uint64(7), snap.Velocity.Cycle)
	assert.Equal(t, uint64(9), snap.Position.Cycle)
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := NewState()
	v := VelocitySnapshot{Velocity: Vector3{X: 1}}
	s.publishVelocity(v)
	v.Velocity.X = 99

	got := s.VelocitySnapshot()
	got.Velocity.X = 42
	assert.Equal(t, 1.0, s.Velocity().X)
}

func TestVector3(t *testing.T) {
	v := Vector3{X: 1, Y: -2, Z: 0.5}
	assert.Equal(t, Vector3{X: 2, Y: -4, Z: 1}, v.Scale(2))
	assert.Equal(t, [3]float64{1, -2, 0.5}, v.Array())
}
