//go:build pcap
// +build pcap

// Command iq-replay replays captured I/Q sample traffic from a PCAP
// file against a running sample listener, respecting the original
// packet timing so buffer occupancy and sensing cadence match the
// capture.
//
// Build with the 'pcap' tag (requires libpcap):
//
//	go run -tags pcap ./cmd/tools/iq-replay -pcap capture.pcap -target 127.0.0.1:4991
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

func main() {
	pcapFile := flag.String("pcap", "", "PCAP file to replay (required)")
	target := flag.String("target", "127.0.0.1:4991", "UDP address of the sample listener")
	port := flag.Int("port", 0, "Only replay packets captured on this UDP port (0 = any)")
	speed := flag.Float64("speed", 1.0, "Replay speed multiplier (1.0 = real-time, 0 = as fast as possible)")
	loop := flag.Bool("loop", false, "Loop the capture until interrupted")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -pcap flag is required")
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial target: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		sent, err := replayOnce(ctx, *pcapFile, *port, *speed, conn)
		if err != nil {
			if err == context.Canceled {
				return
			}
			log.Fatalf("replay failed: %v", err)
		}
		log.Printf("replayed %d packets to %s", sent, *target)
		if !*loop || ctx.Err() != nil {
			return
		}
	}
}

// replayOnce streams one pass over the capture, pacing sends by the
// recorded inter-packet gaps scaled by the speed multiplier.
func replayOnce(ctx context.Context, pcapFile string, port int, speed float64, conn net.Conn) (int, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filter := "udp"
	if port > 0 {
		filter = fmt.Sprintf("udp port %d", port)
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		return 0, fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	sent := 0
	var lastCapture time.Time

	for {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				return sent, nil // end of capture
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			// Pace by the capture's own timing
			captured := packet.Metadata().Timestamp
			if speed > 0 && !lastCapture.IsZero() {
				gap := captured.Sub(lastCapture)
				if gap > 0 {
					wait := time.Duration(float64(gap) / speed)
					select {
					case <-ctx.Done():
						return sent, ctx.Err()
					case <-time.After(wait):
					}
				}
			}
			lastCapture = captured

			if _, err := conn.Write(udp.Payload); err != nil {
				return sent, fmt.Errorf("failed to send packet: %w", err)
			}
			sent++
		}
	}
}
