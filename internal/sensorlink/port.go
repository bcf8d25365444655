// Package sensorlink carries telemetry lines from the sensor board to the
// navigation process: a serial line multiplexer, a UDP listener and an
// offline PCAP reader. Every transport hands complete lines to a
// LineHandler, typically (*sensors.Store).HandleLine.
package sensorlink

import (
	"errors"
	"io"
	"time"
)

// ErrPCAPDisabled is returned by ReadPCAPFile in builds without the pcap tag.
var ErrPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")

// Porter is the minimal interface needed for a serial port. It lets tests
// run without hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// LineHandler consumes one telemetry line. Errors are counted and logged by
// the transport and never stop it.
type LineHandler func(line string) error

// TimedLineHandler consumes a line together with the time it was captured.
// Offline replay uses the capture time to drive the navigation clock.
type TimedLineHandler func(line string, captured time.Time) error
