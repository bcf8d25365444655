// Command navreplay runs recorded or synthetic telemetry through the
// navigation filters offline, records the run to a navigation log and
// writes estimate vs measurement plots.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/navlog"
	"github.com/banshee-data/navfusion/internal/navreport"
	"github.com/banshee-data/navfusion/internal/replay"
	"github.com/banshee-data/navfusion/internal/version"
)

var (
	inputFile      = flag.String("input", "", "Telemetry log to replay ('-' reads stdin)")
	pcapFile       = flag.String("pcap", "", "Packet capture holding telemetry datagrams")
	udpPort        = flag.Int("udp-port", 14550, "UDP port of telemetry datagrams in -pcap")
	synth          = flag.Bool("synth", false, "Replay a synthetic steady flight")
	synthDuration  = flag.Duration("synth-duration", 10*time.Second, "Length of the synthetic flight")
	writeTelemetry = flag.String("write-telemetry", "", "Write the synthetic telemetry to this file and exit")
	configFile     = flag.String("config", config.DefaultConfigPath, "Navigation tuning JSON")
	dbPath         = flag.String("db-path", "navreplay.db", "Navigation log database")
	outDir         = flag.String("out", "report", "Directory for plots and the dashboard")
	recordInterval = flag.Duration("record-interval", 0, "Sampling interval override (default from config)")
)

// job is one replay with its inputs resolved.
type job struct {
	tuning         *config.NavTuning
	input          io.Reader
	pcapPath       string
	udpPort        int
	source         string
	dbPath         string
	outDir         string
	recordInterval time.Duration
}

// result summarises a finished replay.
type result struct {
	RunID   string
	Stats   replay.Stats
	Samples int
	Files   []string
}

func main() {
	flag.Parse()

	tuning, err := config.LoadNavTuning(*configFile)
	if err != nil {
		log.Fatalf("failed to load navigation config: %v", err)
	}

	if *writeTelemetry != "" {
		if err := writeSynthetic(*writeTelemetry, tuning, *synthDuration); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote synthetic telemetry to %s", *writeTelemetry)
		return
	}

	j := job{
		tuning:         tuning,
		udpPort:        *udpPort,
		dbPath:         *dbPath,
		outDir:         *outDir,
		recordInterval: *recordInterval,
	}
	switch {
	case *synth:
		lines, err := replay.Synthesize(synthOptions(tuning, *synthDuration))
		if err != nil {
			log.Fatal(err)
		}
		j.input = strings.NewReader(strings.Join(lines, "\n"))
		j.source = fmt.Sprintf("synthetic %s", *synthDuration)
	case *pcapFile != "":
		j.pcapPath = *pcapFile
		j.source = "pcap " + filepath.Base(*pcapFile)
	case *inputFile == "-":
		j.input = os.Stdin
		j.source = "stdin"
	case *inputFile != "":
		f, err := os.Open(*inputFile)
		if err != nil {
			log.Fatalf("failed to open telemetry: %v", err)
		}
		defer f.Close()
		j.input = f
		j.source = "file " + filepath.Base(*inputFile)
	default:
		flag.Usage()
		os.Exit(2)
	}

	log.Printf("navreplay %s replaying %s", version.String(), j.source)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, j)
	if err != nil {
		log.Fatal(err)
	}
	printSummary(os.Stdout, res)
}

func synthOptions(tuning *config.NavTuning, d time.Duration) replay.SynthOptions {
	opts := replay.DefaultSynthOptions(time.Now().UTC().Truncate(time.Second))
	opts.Duration = d
	if s := tuning.GetAdapter().FlowVelocityScale; s > 0 {
		opts.FlowScale = s
	}
	return opts
}

func writeSynthetic(path string, tuning *config.NavTuning, d time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := replay.WriteTelemetry(f, synthOptions(tuning, d)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// run replays j into a new navigation log run and writes the report for
// the recorded samples.
func run(ctx context.Context, j job) (result, error) {
	var res result
	interval := j.recordInterval
	if interval <= 0 {
		interval = j.tuning.GetRecordInterval()
	}

	db, err := navlog.NewDB(j.dbPath)
	if err != nil {
		return res, fmt.Errorf("failed to open navigation log: %w", err)
	}
	defer db.Close()

	cfgJSON, err := json.Marshal(j.tuning)
	if err != nil {
		return res, err
	}
	r, err := db.StartRun(j.source, string(cfgJSON), time.Now())
	if err != nil {
		return res, fmt.Errorf("failed to start run: %w", err)
	}
	res.RunID = r.ID

	rec := navlog.NewRecorder(db, r.ID, navlog.DefaultBatchSize)
	player, err := replay.NewPlayer(replay.Options{
		Nav:            navigation.ConfigFromTuning(j.tuning),
		MinFlowQuality: j.tuning.GetFlowMinQuality(),
		Recorder:       rec,
		RecordInterval: interval,
	})
	if err != nil {
		return res, err
	}

	if j.pcapPath != "" {
		res.Stats, err = player.ReplayPCAP(ctx, j.pcapPath, j.udpPort)
	} else {
		res.Stats, err = player.ReadFrom(ctx, j.input)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, fmt.Errorf("replay: %w", err)
	}
	if err := db.FinishRun(r.ID, time.Now()); err != nil {
		return res, err
	}

	samples, err := db.Samples(r.ID)
	if err != nil {
		return res, err
	}
	res.Samples = len(samples)
	if len(samples) == 0 {
		return res, errors.New("no samples recorded; is the telemetry long enough?")
	}

	if err := os.MkdirAll(j.outDir, 0o755); err != nil {
		return res, err
	}
	subtitle := fmt.Sprintf("%s, run %s", j.source, r.ID)
	res.Files, err = navreport.WriteReport(samples, j.outDir, subtitle)
	return res, err
}

func printSummary(w io.Writer, res result) {
	s := res.Stats
	fmt.Fprintf(w, "Run %s\n", res.RunID)
	fmt.Fprintf(w, "  telemetry: %d lines over %s (%d malformed, %d out of order)\n",
		s.Lines, s.Duration(), s.Errors, s.OutOfOrder)
	fmt.Fprintf(w, "  cycles:    velocity %d, position %d\n", s.VelocityCycles, s.PositionCycles)
	fmt.Fprintf(w, "  samples:   %d\n", res.Samples)
	for _, f := range res.Files {
		fmt.Fprintf(w, "  wrote %s\n", f)
	}
}
