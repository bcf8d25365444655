package navigation

import (
	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/sensors"
)

// Vector3 is an x/y/z triple in the filter frame.
type Vector3 struct {
	X, Y, Z float64
}

// Scale returns v multiplied by k.
func (v Vector3) Scale(k float64) Vector3 {
	return Vector3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Array returns the components as an array.
func (v Vector3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Adapter converts raw sensor readings into the filter frame and units.
// It never filters values: invalid samples pass through unchanged and the
// stagers decide which channels are fused.
type Adapter struct {
	s config.AdapterSettings
}

// NewAdapter returns an Adapter using the given conversion factors.
func NewAdapter(s config.AdapterSettings) *Adapter {
	return &Adapter{s: s}
}

// SpecificForce maps an inertial sample to navigation-frame acceleration.
// The horizontal sensor axes are swapped and negated (sensor X forward,
// Y right onto the filter's right-handed frame); the vertical component
// comes from the world-frame output in milli-units.
func (a *Adapter) SpecificForce(imu sensors.IMUSample) Vector3 {
	return Vector3{
		X: -imu.HorizontalAccel[1] * a.s.HorizontalAccelScale,
		Y: -imu.HorizontalAccel[0] * a.s.HorizontalAccelScale,
		Z: imu.WorldAccel[2] * a.s.VerticalAccelScale,
	}
}

// VelocityChannels builds the velocity measurement vector in channel order.
// Reserved channels are always zero.
func (a *Adapter) VelocityChannels(flow sensors.FlowSample, baro sensors.BaroSample, rng sensors.RangeSample) [VelocityChannelCount]float64 {
	var z [VelocityChannelCount]float64
	z[FlowVelX] = flow.VelX * a.s.FlowVelocityScale
	z[FlowVelY] = flow.VelY * a.s.FlowVelocityScale
	z[BaroVelZ] = baro.VerticalVelocity
	z[RangeVelZ] = rng.VerticalVelocity * a.s.RangeVelocityScale
	return z
}

// PositionChannels builds the position measurement: integrated flow
// displacement and the current height.
func (a *Adapter) PositionChannels(flow sensors.FlowSample, baro sensors.BaroSample, rng sensors.RangeSample) Vector3 {
	return Vector3{X: flow.PosX, Y: flow.PosY, Z: a.Height(baro, rng)}
}

// Height returns the height reference selected by the height source
// setting. Ranging is used only while its sample is valid; otherwise the
// barometric height is returned.
func (a *Adapter) Height(baro sensors.BaroSample, rng sensors.RangeSample) float64 {
	if a.usesRange(rng) {
		return rng.Distance
	}
	return baro.Height
}

// HeightValid reports whether the sample Height would use is valid.
func (a *Adapter) HeightValid(baro sensors.BaroSample, rng sensors.RangeSample) bool {
	if a.usesRange(rng) {
		return true
	}
	return baro.Valid
}

func (a *Adapter) usesRange(rng sensors.RangeSample) bool {
	return a.s.HeightSource == config.HeightSourceRange && rng.Valid
}
