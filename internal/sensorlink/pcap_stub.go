//go:build !pcap
// +build !pcap

package sensorlink

import (
	"context"
)

// ReadPCAPFile is a stub implementation when PCAP support is disabled.
func ReadPCAPFile(ctx context.Context, path string, udpPort int, handle TimedLineHandler) (LinkStats, error) {
	return LinkStats{}, ErrPCAPDisabled
}
