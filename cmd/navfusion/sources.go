package main

import (
	"context"
	"time"

	"github.com/banshee-data/navfusion/internal/replay"
	"github.com/banshee-data/navfusion/internal/sensorlink"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// devTelemetry synthesises one loop of steady flight for dev mode. Flow
// lines are scaled for the configured adapter.
func devTelemetry(start time.Time, flowScale float64) ([]string, error) {
	opts := replay.DefaultSynthOptions(start)
	opts.Duration = 30 * time.Second
	if flowScale > 0 {
		opts.FlowScale = flowScale
	}
	return replay.Synthesize(opts)
}

func paceTelemetry(ctx context.Context, clock timeutil.Clock, lines []string, handle sensorlink.LineHandler) error {
	return replay.Pace(ctx, clock, lines, true, handle)
}

// counterLink reports a line counter through the sensor admin routes for
// sources that have no port behind them.
type counterLink struct {
	*sensorlink.DisabledLink
	lines func() uint64
}

func (c *counterLink) Stats() sensorlink.LinkStats {
	return sensorlink.LinkStats{Lines: c.lines()}
}

type udpLink struct {
	*sensorlink.DisabledLink
	l *sensorlink.UDPListener
}

func (u *udpLink) Stats() sensorlink.LinkStats { return u.l.Stats() }
