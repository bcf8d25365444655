//go:build pcap
// +build pcap

package sensorlink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/navfusion/internal/monitoring"
)

// ReadPCAPFile replays telemetry datagrams sent to udpPort from a capture
// file. Every line is passed to handle with the packet's capture time.
// This function is only available when building with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, path string, udpPort int, handle TimedLineHandler) (LinkStats, error) {
	var stats LinkStats

	h, err := pcap.OpenOffline(path)
	if err != nil {
		return stats, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer h.Close()

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := h.SetBPFFilter(filter); err != nil {
		return stats, fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
	}
	monitoring.Logf("[sensorlink] PCAP BPF filter set: %s", filter)

	errLog := monitoring.NewLimiter(100)
	source := gopacket.NewPacketSource(h, h.LinkType())
	packets := 0
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				monitoring.Logf("[sensorlink] PCAP replay complete: %d packets, %d lines in %v", packets, stats.Lines, time.Since(start))
				return stats, nil
			}
			packets++

			udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			captured := packet.Metadata().Timestamp

			for _, line := range strings.Split(string(udp.Payload), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				stats.Lines++
				if err := handle(line, captured); err != nil {
					stats.Errors++
					if errLog.Allow() {
						monitoring.Logf("[sensorlink] PCAP packet %d: %v", packets, err)
					}
				}
			}
		}
	}
}
