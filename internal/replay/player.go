// Package replay runs recorded telemetry through the navigator offline. A
// mock clock is stepped to the timestamp of every sensor line, and the
// estimator tasks run at their configured periods in between, so a replay is
// deterministic and faster than real time.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/navlog"
	"github.com/banshee-data/navfusion/internal/sensorlink"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// Stats summarises a replay.
type Stats struct {
	Lines          int
	Errors         int
	OutOfOrder     int
	VelocityCycles int
	PositionCycles int
	Recorded       int
	Start          time.Time
	End            time.Time
}

// Duration is the span of telemetry time covered.
func (s Stats) Duration() time.Duration { return s.End.Sub(s.Start) }

// Options configures a Player.
type Options struct {
	Nav            navigation.Config
	MinFlowQuality float64
	// Recorder receives a snapshot every RecordInterval of telemetry time.
	// Nil disables recording.
	Recorder       *navlog.Recorder
	RecordInterval time.Duration
}

// Player feeds telemetry lines into a navigator driven by a mock clock.
type Player struct {
	nav   *navigation.Navigator
	store *sensors.Store
	clock *timeutil.MockClock

	rec         *navlog.Recorder
	recordEvery time.Duration

	velPeriod, posPeriod time.Duration
	nextVel, nextPos     time.Time
	nextRecord           time.Time
	now                  time.Time
	started              bool

	stats  Stats
	errLog *monitoring.Limiter
}

// NewPlayer builds a navigator on a fresh store and mock clock.
func NewPlayer(opts Options) (*Player, error) {
	if opts.Nav.VelocityTaskPeriod <= 0 || opts.Nav.PositionTaskPeriod <= 0 {
		return nil, fmt.Errorf("task periods must be positive (velocity %s, position %s)",
			opts.Nav.VelocityTaskPeriod, opts.Nav.PositionTaskPeriod)
	}
	if opts.Recorder != nil && opts.RecordInterval <= 0 {
		return nil, fmt.Errorf("record interval must be positive, got %s", opts.RecordInterval)
	}

	store := sensors.NewStore(opts.MinFlowQuality)
	clock := timeutil.NewMockClock(time.Time{})
	nav, err := navigation.New(opts.Nav, store, clock)
	if err != nil {
		return nil, err
	}
	return &Player{
		nav:         nav,
		store:       store,
		clock:       clock,
		rec:         opts.Recorder,
		recordEvery: opts.RecordInterval,
		velPeriod:   opts.Nav.VelocityTaskPeriod,
		posPeriod:   opts.Nav.PositionTaskPeriod,
		errLog:      monitoring.NewLimiter(100),
	}, nil
}

// Navigator returns the navigator being driven.
func (p *Player) Navigator() *navigation.Navigator { return p.nav }

// Stats returns the counters so far.
func (p *Player) Stats() Stats { return p.stats }

// HandleLine parses one telemetry line, runs every task due up to its
// timestamp and then stores the sample. Lines older than the replay clock
// are stored without running tasks.
func (p *Player) HandleLine(line string) error {
	p.stats.Lines++
	r, err := sensors.ParseLine(line)
	if err != nil {
		p.stats.Errors++
		p.errLog.Logf("[replay] skipping line %d: %v", p.stats.Lines, err)
		return err
	}

	t := r.Time()
	if !p.started {
		p.start(t)
	} else if t.Before(p.now) {
		p.stats.OutOfOrder++
	} else {
		p.advance(t)
	}
	p.store.Put(r)
	return nil
}

// HandleTimedLine adapts HandleLine to capture readers. The telemetry
// timestamp inside the line is authoritative; the capture time is ignored.
func (p *Player) HandleTimedLine(line string, _ time.Time) error {
	return p.HandleLine(line)
}

func (p *Player) start(t time.Time) {
	p.started = true
	p.now = t
	p.stats.Start = t
	p.stats.End = t
	p.clock.Set(t)
	p.nextVel = t.Add(p.velPeriod)
	p.nextPos = t.Add(p.posPeriod)
	p.nextRecord = t.Add(p.recordEvery)
}

// advance runs the tasks due in (now, t] in time order, velocity first when
// both fall on the same instant.
func (p *Player) advance(t time.Time) {
	for {
		next := p.nextVel
		if p.nextPos.Before(next) {
			next = p.nextPos
		}
		if next.After(t) {
			break
		}
		p.clock.Set(next)
		if !p.nextVel.After(next) {
			p.nav.VelocityTask()
			p.stats.VelocityCycles++
			p.nextVel = p.nextVel.Add(p.velPeriod)
		}
		if !p.nextPos.After(next) {
			p.nav.PositionTask()
			p.stats.PositionCycles++
			p.nextPos = p.nextPos.Add(p.posPeriod)
		}
		if p.rec != nil && !p.nextRecord.After(next) {
			if p.rec.Record(p.nav.State().Snapshot()) {
				p.stats.Recorded++
			}
			p.nextRecord = p.nextRecord.Add(p.recordEvery)
		}
	}
	p.now = t
	p.stats.End = t
	p.clock.Set(t)
}

// ReadFrom replays newline separated telemetry. Blank lines and lines
// starting with # are skipped; malformed lines are counted and skipped.
func (p *Player) ReadFrom(ctx context.Context, r io.Reader) (Stats, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return p.stats, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		_ = p.HandleLine(line)
	}
	if err := scanner.Err(); err != nil {
		return p.stats, fmt.Errorf("read telemetry: %w", err)
	}
	return p.stats, p.flush()
}

// ReplayPCAP replays telemetry datagrams sent to udpPort in a capture file.
// Requires a build with the pcap tag.
func (p *Player) ReplayPCAP(ctx context.Context, path string, udpPort int) (Stats, error) {
	if _, err := sensorlink.ReadPCAPFile(ctx, path, udpPort, p.HandleTimedLine); err != nil {
		return p.stats, err
	}
	return p.stats, p.flush()
}

func (p *Player) flush() error {
	if p.rec == nil {
		return nil
	}
	return p.rec.Flush()
}
