package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/navfusion/internal/navlog"
	"github.com/banshee-data/navfusion/internal/navserver"
	"github.com/banshee-data/navfusion/internal/version"
)

const clientTimeout = 5 * time.Second

// runCommand dispatches a subcommand. Client subcommands talk to the
// service at -server.
func runCommand(ctx context.Context, args []string, out io.Writer) error {
	switch args[0] {
	case "migrate":
		return navlog.RunMigrateCommand(args[1:], *dbPath, out)
	case "version":
		fmt.Fprintf(out, "navfusion %s\n", version.String())
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()
	client := navserver.NewClient(*serverURL, nil)

	switch args[0] {
	case "status":
		return printStatus(ctx, client, out)
	case "reset":
		if err := client.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Fprintln(out, "Reset requested")
		return nil
	case "ranging":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return fmt.Errorf("usage: navfusion ranging <on|off>")
		}
		on, err := client.SetRanging(ctx, args[1] == "on")
		if err != nil {
			return fmt.Errorf("ranging: %w", err)
		}
		fmt.Fprintf(out, "Ranging enabled: %v\n", on)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printStatus(ctx context.Context, client *navserver.Client, out io.Writer) error {
	h, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	s, err := client.State(ctx, "", "")
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}

	fmt.Fprintf(out, "Status:     %s (ready %v, dead reckoning %v)\n", h.Status, h.Ready, h.DeadReckoning)
	fmt.Fprintf(out, "Fusions:    velocity %d, position %d\n", h.VelocityFusions, h.PositionFusions)
	if h.LastAided != nil {
		fmt.Fprintf(out, "Last aided: %s\n", h.LastAided.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(out, "Ranging:    %v\n", s.Ranging)
	v, p := s.Velocity.Velocity, s.Position.Position
	fmt.Fprintf(out, "Velocity:   %.3f %.3f %.3f %s (cycle %d)\n", v[0], v[1], v[2], s.SpeedUnits, s.Velocity.Cycle)
	fmt.Fprintf(out, "Position:   %.3f %.3f %.3f %s (cycle %d)\n", p[0], p[1], p[2], s.DistanceUnits, s.Position.Cycle)
	b := s.Velocity.AccelBias
	fmt.Fprintf(out, "Accel bias: %.4f %.4f %.4f m/s²\n", b[0], b[1], b[2])
	return nil
}
