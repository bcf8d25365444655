package replay

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/banshee-data/navfusion/internal/sensorlink"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// SynthOptions describes a steady synthetic flight: constant horizontal
// velocity and climb rate with noise-free sensors.
type SynthOptions struct {
	Start    time.Time
	Duration time.Duration

	VelX, VelY float64 // m/s
	ClimbRate  float64 // m/s
	Height     float64 // starting height, m

	// FlowScale is the adapter's flow velocity scale; flow lines carry
	// velocity divided by it.
	FlowScale float64

	IMURate, FlowRate, BaroRate float64 // Hz
}

// DefaultSynthOptions is a 10 s flight at 0.5 m/s forward, 0.2 m/s right and
// 0.1 m/s climb from 1 m.
func DefaultSynthOptions(start time.Time) SynthOptions {
	return SynthOptions{
		Start:     start,
		Duration:  10 * time.Second,
		VelX:      0.5,
		VelY:      0.2,
		ClimbRate: 0.1,
		Height:    1,
		FlowScale: 10,
		IMURate:   1000,
		FlowRate:  100,
		BaroRate:  50,
	}
}

type timedLine struct {
	t    time.Time
	kind int
	line string
}

// Synthesize returns telemetry lines for opts in time order.
func Synthesize(opts SynthOptions) ([]string, error) {
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", opts.Duration)
	}
	if opts.IMURate <= 0 || opts.FlowRate <= 0 || opts.BaroRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive")
	}
	if opts.FlowScale == 0 {
		opts.FlowScale = 1
	}

	var out []timedLine
	emit := func(kind int, rate float64, reading func(t time.Time, s float64) sensors.Reading) {
		step := time.Duration(float64(time.Second) / rate)
		for off := time.Duration(0); off <= opts.Duration; off += step {
			t := opts.Start.Add(off)
			out = append(out, timedLine{t: t, kind: kind, line: sensors.FormatLine(reading(t, off.Seconds()))})
		}
	}

	emit(0, opts.IMURate, func(t time.Time, _ float64) sensors.Reading {
		return sensors.Reading{Kind: sensors.KindIMU, IMU: sensors.IMUSample{Time: t}}
	})
	emit(1, opts.FlowRate, func(t time.Time, s float64) sensors.Reading {
		return sensors.Reading{Kind: sensors.KindFlow, Flow: sensors.FlowSample{
			Time:    t,
			VelX:    opts.VelX / opts.FlowScale,
			VelY:    opts.VelY / opts.FlowScale,
			PosX:    opts.VelX * s,
			PosY:    opts.VelY * s,
			Quality: 255,
			Valid:   true,
		}}
	})
	emit(2, opts.BaroRate, func(t time.Time, s float64) sensors.Reading {
		return sensors.Reading{Kind: sensors.KindBaro, Baro: sensors.BaroSample{
			Time:             t,
			Height:           opts.Height + opts.ClimbRate*s,
			VerticalVelocity: opts.ClimbRate,
			Valid:            true,
		}}
	})

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].t.Equal(out[j].t) {
			return out[i].kind < out[j].kind
		}
		return out[i].t.Before(out[j].t)
	})
	lines := make([]string, len(out))
	for i, l := range out {
		lines[i] = l.line
	}
	return lines, nil
}

// WriteTelemetry writes synthesized telemetry to w, one line each.
func WriteTelemetry(w io.Writer, opts SynthOptions) error {
	lines, err := Synthesize(opts)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// Pace hands lines to handle at the pace of their timestamps on clock,
// looping back to the start when loop is set. Lines that do not parse are
// dropped. It returns when ctx is cancelled or, without loop, after the
// last line.
func Pace(ctx context.Context, clock timeutil.Clock, lines []string, loop bool, handle sensorlink.LineHandler) error {
	type paced struct {
		offset time.Duration
		line   string
	}
	var schedule []paced
	var origin time.Time
	for _, l := range lines {
		r, err := sensors.ParseLine(l)
		if err != nil {
			continue
		}
		if len(schedule) == 0 {
			origin = r.Time()
		}
		schedule = append(schedule, paced{offset: r.Time().Sub(origin), line: l})
	}
	if len(schedule) == 0 {
		return nil
	}

	ticker := clock.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		start := clock.Now()
		for i := 0; i < len(schedule); {
			if clock.Since(start) < schedule[i].offset {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C():
				}
				continue
			}
			_ = handle(schedule[i].line)
			i++
		}
		if !loop {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
