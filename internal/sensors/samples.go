// Package sensors defines the raw sample types delivered by the inertial,
// optical-flow, barometric and ranging drivers, a latest-value store the
// estimator tasks poll, and the telemetry line codec used by transports.
package sensors

import "time"

// IMUSample is one inertial reading in sensor units. HorizontalAccel is the
// sensor-frame accelerometer output (X forward, Y right) and WorldAccel the
// gravity-compensated world-frame acceleration in milli-units.
type IMUSample struct {
	Time            time.Time
	HorizontalAccel [3]float64
	WorldAccel      [3]float64
}

// FlowSample is an optical-flow reading: body-frame velocity, integrated
// displacement since power-up, and a quality figure from the sensor.
type FlowSample struct {
	Time    time.Time
	VelX    float64
	VelY    float64
	PosX    float64
	PosY    float64
	Quality float64
	Valid   bool
}

// BaroSample is a barometric reference height and the vertical velocity
// derived from it.
type BaroSample struct {
	Time             time.Time
	Height           float64
	VerticalVelocity float64
	Valid            bool
}

// RangeSample is a downward ranging (time-of-flight) reading.
type RangeSample struct {
	Time             time.Time
	Distance         float64
	VerticalVelocity float64
	Valid            bool
}

// Source is polled once per estimator cycle for the newest sample of each
// stream. Implementations must be safe for concurrent readers.
type Source interface {
	IMU() IMUSample
	Flow() FlowSample
	Baro() BaroSample
	Range() RangeSample
}
