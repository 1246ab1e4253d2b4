package iq

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/spectrum.report/internal/monitoring"
)

// SampleSink receives decoded sample batches. The engine's
// FeedSamplesInt16 satisfies it.
type SampleSink interface {
	FeedSamplesInt16(iq []int16)
}

// maxDatagram is sized for jumbo frames; typical front ends send
// 1024-sample (4096 byte) payloads.
const maxDatagram = 9216

// UDPListener receives interleaved little-endian int16 I/Q datagrams
// and feeds them to the sample sink.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       PacketStatsInterface
	sink        SampleSink
}

// UDPListenerConfig contains configuration options for the listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Sink        SampleSink
}

// NewUDPListener creates a new UDP listener with the provided
// configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to
	// avoid nil checks in the packet handling and logging paths.
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		sink:        config.Sink,
	}
}

// Start begins listening for sample datagrams and feeding the sink. It
// blocks until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("iq: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("iq: sample listener started on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	buffer := make([]byte, maxDatagram)
	samples := make([]int16, maxDatagram/2)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("iq: sample listener stopping")
			return ctx.Err()
		default:
			// Read deadline allows checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("iq: UDP read error: %v", err)
				continue
			}

			l.handlePacket(buffer[:n], samples)
		}
	}
}

// LocalAddr returns the bound address once the listener has started,
// useful when listening on an ephemeral port.
func (l *UDPListener) LocalAddr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *UDPListener) handlePacket(packet []byte, scratch []int16) {
	l.stats.AddPacket(len(packet))

	samples, ok := decodeSamples(packet, scratch)
	if !ok {
		l.stats.AddMalformed()
		return
	}
	if len(samples) == 0 {
		return
	}

	l.stats.AddSamples(len(samples) / 2)
	if l.sink != nil {
		l.sink.FeedSamplesInt16(samples)
	}
}

// decodeSamples converts a datagram of little-endian int16 values into
// scratch. A payload that is not a whole number of I/Q pairs is
// rejected rather than silently misaligned.
func decodeSamples(packet []byte, scratch []int16) ([]int16, bool) {
	if len(packet)%4 != 0 {
		return nil, false
	}
	n := len(packet) / 2
	if n > len(scratch) {
		n = len(scratch)
	}
	for i := 0; i < n; i++ {
		scratch[i] = int16(binary.LittleEndian.Uint16(packet[2*i:]))
	}
	return scratch[:n], true
}

// startStatsLogging periodically logs packet statistics. An initial
// report fires shortly after startup to avoid a long first-run silence.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}
