package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/navfusion/internal/config"
	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/navlog"
	"github.com/banshee-data/navfusion/internal/navreport"
	"github.com/banshee-data/navfusion/internal/navserver"
	"github.com/banshee-data/navfusion/internal/sensorlink"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/timeutil"
	"github.com/banshee-data/navfusion/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Feed synthetic telemetry instead of reading a device")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty disables)")
	port        = flag.String("port", "/dev/ttyAMA0", "Serial port carrying sensor telemetry (ignored in dev and UDP mode)")
	baudRate    = flag.Int("baud", sensorlink.DefaultBaudRate, "Serial baud rate")
	udpListen   = flag.String("udp-listen", "", "Receive telemetry datagrams on this address instead of the serial port")
	udpRcvBuf   = flag.Int("udp-rcvbuf", 4<<20, "UDP socket receive buffer, bytes")
	configFile  = flag.String("config", "", "Navigation tuning JSON (default: "+config.DefaultConfigPath+")")
	dbPath      = flag.String("db-path", "navlog.db", "Navigation log database")
	noRecord    = flag.Bool("no-record", false, "Do not record navigation samples")
	chartWindow = flag.Int("chart-window", 2000, "Samples shown on /debug/nav/charts")
	serverURL   = flag.String("server", "http://localhost:8080", "API base URL used by the client subcommands")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() > 0 {
		if err := runCommand(context.Background(), flag.Args(), os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := serve(); err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), `navfusion %s

Usage:
  navfusion [flags]                 run the navigation service
  navfusion migrate <up|down|to N|status>
  navfusion status                  print the running service's state
  navfusion reset                   request a navigation reset
  navfusion ranging <on|off>        switch ranging fusion
  navfusion version

Flags:
`, version.Version)
	flag.PrintDefaults()
}

func loadTuning() (*config.NavTuning, error) {
	if *configFile == "" {
		return config.LoadNavTuning(config.DefaultConfigPath)
	}
	return config.LoadNavTuning(*configFile)
}

// telemetry is a running telemetry source.
type telemetry struct {
	name string
	link sensorlink.LinkInterface
	run  func(ctx context.Context) error
}

func openTelemetry(store *sensors.Store, clock timeutil.Clock, adapter config.AdapterSettings) (*telemetry, error) {
	switch {
	case *devMode:
		lines, err := devTelemetry(clock.Now(), adapter.FlowVelocityScale)
		if err != nil {
			return nil, err
		}
		return &telemetry{
			name: fmt.Sprintf("synthetic telemetry (%d lines, looped)", len(lines)),
			link: &counterLink{DisabledLink: sensorlink.NewDisabledLink(), lines: store.Received},
			run: func(ctx context.Context) error {
				return paceTelemetry(ctx, clock, lines, store.HandleLine)
			},
		}, nil

	case *udpListen != "":
		l := sensorlink.NewUDPListener(sensorlink.UDPListenerConfig{
			Address: *udpListen,
			RcvBuf:  *udpRcvBuf,
			Handler: store.HandleLine,
		})
		return &telemetry{
			name: "UDP " + *udpListen,
			link: &udpLink{DisabledLink: sensorlink.NewDisabledLink(), l: l},
			run:  l.Start,
		}, nil

	default:
		if *port == "" {
			return nil, errors.New("serial port is required")
		}
		link, err := sensorlink.OpenSerial(*port, sensorlink.PortOptions{BaudRate: *baudRate})
		if err != nil {
			return nil, fmt.Errorf("failed to open sensor port: %w", err)
		}
		link.SetHandler(store.HandleLine)
		return &telemetry{name: "serial " + *port, link: link, run: link.Monitor}, nil
	}
}

func serve() error {
	if *listen == "" {
		return errors.New("listen address is required")
	}

	tuning, err := loadTuning()
	if err != nil {
		return fmt.Errorf("failed to load navigation config: %w", err)
	}
	navCfg := navigation.ConfigFromTuning(tuning)

	clock := timeutil.RealClock{}
	store := sensors.NewStore(tuning.GetFlowMinQuality())
	nav, err := navigation.New(navCfg, store, clock)
	if err != nil {
		return fmt.Errorf("failed to build navigator: %w", err)
	}

	source, err := openTelemetry(store, clock, navCfg.Adapter)
	if err != nil {
		return err
	}
	defer source.link.Close()
	log.Printf("navfusion %s reading %s", version.String(), source.name)

	db, err := navlog.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open navigation log: %w", err)
	}
	defer db.Close()

	var rec *navlog.Recorder
	if !*noRecord {
		cfgJSON, _ := json.Marshal(tuning)
		run, err := db.StartRun(source.name, string(cfgJSON), clock.Now())
		if err != nil {
			return fmt.Errorf("failed to start run: %w", err)
		}
		defer func() {
			if err := db.FinishRun(run.ID, clock.Now()); err != nil {
				log.Printf("failed to finish run %s: %v", run.ID, err)
			}
		}()
		rec = navlog.NewRecorder(db, run.ID, navlog.DefaultBatchSize)
		log.Printf("recording run %s to %s every %s", run.ID, *dbPath, tuning.GetRecordInterval())
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("telemetry source stopped: %v", err)
		}
		log.Print("telemetry routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := navigation.NewRunner(nav, clock).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("navigator stopped: %v", err)
		}
		log.Print("navigator routine terminated")
	}()

	if rec != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Run(ctx, nav.State(), clock, tuning.GetRecordInterval()); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("recorder stopped: %v", err)
			}
			log.Printf("recorder routine terminated after %d samples", rec.Written())
		}()
	}

	hs := navserver.NewHealthService(nav)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hs.Run(ctx, clock, time.Second)
	}()

	if *grpcListen != "" {
		gs := navserver.NewGRPCServer(hs)
		if _, err := gs.Listen(*grpcListen); err != nil {
			stop()
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			gs.Stop()
			log.Print("gRPC server terminated")
		}()
	}

	mux := http.NewServeMux()
	navserver.NewAPI(nav).AttachRoutes(mux)
	sensorlink.AttachAdminRoutes(mux, source.link)
	if err := db.AttachAdminRoutes(mux); err != nil {
		log.Printf("admin routes: %v", err)
	}
	if rec != nil {
		navreport.AttachRoutes(mux, navreport.RunWindow{DB: db, RunID: rec.RunID(), Limit: *chartWindow})
	}

	server := &http.Server{
		Addr:    *listen,
		Handler: navserver.LoggingMiddleware(mux),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		server.Close()
	}
	log.Print("HTTP server routine stopped")

	wg.Wait()
	log.Printf("graceful shutdown complete (%d telemetry lines)", store.Received())
	return nil
}
