package main

import (
	"testing"

	"github.com/banshee-data/navfusion/internal/sensorlink"
)

func TestFlagDefaults(t *testing.T) {
	if *devMode {
		t.Error("expected dev mode off by default")
	}
	if *listen != ":8080" {
		t.Errorf("expected listen :8080, got %q", *listen)
	}
	if *grpcListen != ":50051" {
		t.Errorf("expected gRPC listen :50051, got %q", *grpcListen)
	}
	if *baudRate != sensorlink.DefaultBaudRate {
		t.Errorf("expected baud %d, got %d", sensorlink.DefaultBaudRate, *baudRate)
	}
	if *udpListen != "" {
		t.Errorf("expected UDP input off by default, got %q", *udpListen)
	}
	if *noRecord {
		t.Error("expected recording on by default")
	}
	if *chartWindow <= 0 {
		t.Errorf("expected a positive chart window, got %d", *chartWindow)
	}
}

func TestLoadTuning(t *testing.T) {
	t.Cleanup(func() { *configFile = "" })

	*configFile = "../../config/navigation.defaults.json"
	cfg, err := loadTuning()
	if err != nil {
		t.Fatalf("loadTuning: %v", err)
	}
	if cfg.GetVelocityTaskPeriod() <= 0 {
		t.Errorf("expected a positive velocity period, got %s", cfg.GetVelocityTaskPeriod())
	}

	*configFile = "missing.json"
	if _, err := loadTuning(); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
