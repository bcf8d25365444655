// Package navreport renders recorded navigation samples as PNG plots and as
// an interactive HTML dashboard.
package navreport

import (
	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/navlog"
)

// Axis names used in titles and file names.
var axisNames = [3]string{"x", "y", "z"}

// Point is one value at a time offset, in seconds, from the first sample.
type Point struct {
	T float64
	V float64
}

// Comparison pairs an estimate with the measurement that corrects it. The
// measurement only holds points where its channel was enabled.
type Comparison struct {
	Title       string
	Unit        string
	Estimate    []Point
	Measurement []Point
}

// Series splits recorded samples into per-axis comparisons.
type Series struct {
	Velocity [3]Comparison
	Position [3]Comparison
	Bias     [3][]Point
}

// velocityMeasurementChannel maps each velocity axis to the channels that
// measure it. Vertical velocity has two sources.
var velocityMeasurementChannel = [3][]int{
	{navigation.FlowVelX},
	{navigation.FlowVelY},
	{navigation.BaroVelZ, navigation.RangeVelZ},
}

// BuildSeries extracts the plotted quantities from samples, which must be in
// time order.
func BuildSeries(samples []navlog.Sample) Series {
	var s Series
	for axis := 0; axis < 3; axis++ {
		s.Velocity[axis] = Comparison{Title: "Velocity " + axisNames[axis], Unit: "m/s"}
		s.Position[axis] = Comparison{Title: "Position " + axisNames[axis], Unit: "m"}
	}
	if len(samples) == 0 {
		return s
	}

	start := samples[0].Time
	for _, smp := range samples {
		t := smp.Time.Sub(start).Seconds()
		for axis := 0; axis < 3; axis++ {
			s.Velocity[axis].Estimate = append(s.Velocity[axis].Estimate, Point{t, smp.Velocity[axis]})
			s.Position[axis].Estimate = append(s.Position[axis].Estimate, Point{t, smp.Position[axis]})
			s.Bias[axis] = append(s.Bias[axis], Point{t, smp.AccelBias[axis]})

			for _, ch := range velocityMeasurementChannel[axis] {
				if smp.VelocityEnabled[ch] {
					s.Velocity[axis].Measurement = append(s.Velocity[axis].Measurement, Point{t, smp.VelocityMeasurement[ch]})
					break
				}
			}
			if smp.PositionEnabled[axis] {
				s.Position[axis].Measurement = append(s.Position[axis].Measurement, Point{t, smp.PositionMeasurement[axis]})
			}
		}
	}
	return s
}
