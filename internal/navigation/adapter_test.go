package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/sensors"
)

func referenceAdapter() *Adapter {
	return NewAdapter(config.EmptyNavTuning().GetAdapter())
}

func TestAdapterSpecificForce(t *testing.T) {
	a := referenceAdapter()
	got := a.SpecificForce(sensors.IMUSample{
		HorizontalAccel: [3]float64{2, 4, 7},
		WorldAccel:      [3]float64{5, 6, 1000},
	})
	assert.InDelta(t, -6.0, got.X, 1e-12) // -Y * 1.5
	assert.InDelta(t, -3.0, got.Y, 1e-12) // -X * 1.5
	assert.InDelta(t, 1.0, got.Z, 1e-12)  // world Z milli-units
}

func TestAdapterVelocityChannels(t *testing.T) {
	a := referenceAdapter()
	z := a.VelocityChannels(
		sensors.FlowSample{VelX: 0.1, VelY: -0.2},
		sensors.BaroSample{VerticalVelocity: 0.3},
		sensors.RangeSample{VerticalVelocity: 0.4},
	)
	assert.InDelta(t, 1.0, z[FlowVelX], 1e-12)
	assert.InDelta(t, -2.0, z[FlowVelY], 1e-12)
	assert.Equal(t, 0.3, z[BaroVelZ])
	assert.Equal(t, 0.0, z[Reserved3])
	assert.Equal(t, 0.4, z[RangeVelZ])
	assert.Equal(t, 0.0, z[Reserved5])
}

func TestAdapterPassesInvalidSamplesThrough(t *testing.T) {
	a := referenceAdapter()
	z := a.VelocityChannels(sensors.FlowSample{VelX: 1, Valid: false}, sensors.BaroSample{}, sensors.RangeSample{})
	assert.Equal(t, 10.0, z[FlowVelX])
}

func TestAdapterHeightSource(t *testing.T) {
	baro := sensors.BaroSample{Height: 3, Valid: true}
	rng := sensors.RangeSample{Distance: 1.2, Valid: true}
	flow := sensors.FlowSample{PosX: 4, PosY: 5}

	a := referenceAdapter()
	assert.Equal(t, Vector3{X: 4, Y: 5, Z: 3}, a.PositionChannels(flow, baro, rng))

	s := config.EmptyNavTuning().GetAdapter()
	s.HeightSource = config.HeightSourceRange
	r := NewAdapter(s)
	assert.Equal(t, Vector3{X: 4, Y: 5, Z: 1.2}, r.PositionChannels(flow, baro, rng))
	assert.True(t, r.HeightValid(sensors.BaroSample{}, rng))

	// falls back to baro without a valid range sample
	rng.Valid = false
	assert.Equal(t, 3.0, r.Height(baro, rng))
	assert.False(t, r.HeightValid(sensors.BaroSample{}, rng))
}
