package iq

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"
)

// collectSink records fed batches.
type collectSink struct {
	mu      sync.Mutex
	batches [][]int16
}

func (c *collectSink) FeedSamplesInt16(iq []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]int16, len(iq))
	copy(batch, iq)
	c.batches = append(c.batches, batch)
}

func (c *collectSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestDecodeSamples(t *testing.T) {
	packet := make([]byte, 8)
	for i, s := range []int16{1000, -1000, 32767, -32768} {
		binary.LittleEndian.PutUint16(packet[2*i:], uint16(s))
	}

	scratch := make([]int16, 16)
	samples, ok := decodeSamples(packet, scratch)
	if !ok {
		t.Fatal("decode failed")
	}
	want := []int16{1000, -1000, 32767, -32768}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestDecodeSamplesRejectsPartialPairs(t *testing.T) {
	scratch := make([]int16, 16)
	for _, size := range []int{1, 2, 3, 5, 6, 7} {
		if _, ok := decodeSamples(make([]byte, size), scratch); ok {
			t.Errorf("payload of %d bytes accepted, want rejected", size)
		}
	}
	if _, ok := decodeSamples(nil, scratch); !ok {
		t.Error("empty payload should decode to zero samples")
	}
}

func TestUDPListenerFeedsSink(t *testing.T) {
	sink := &collectSink{}
	stats := &PacketStats{}
	l := NewUDPListener(UDPListenerConfig{
		Address: "127.0.0.1:0",
		Stats:   stats,
		Sink:    sink,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	// wait for the socket to bind
	var addr net.Addr
	for i := 0; i < 100; i++ {
		if addr = l.LocalAddr(); addr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("listener never bound")
	}

	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	packet := make([]byte, 16) // 4 I/Q pairs
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(packet[2*i:], uint16(int16(i*100)))
	}
	if _, err := conn.Write(packet); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sink never received samples")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sink.mu.Lock()
	got := sink.batches[0]
	sink.mu.Unlock()
	if len(got) != 8 {
		t.Fatalf("got %d values, want 8", len(got))
	}
	if got[3] != 300 {
		t.Errorf("sample 3 = %d, want 300", got[3])
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestUDPListenerCountsMalformed(t *testing.T) {
	stats := &PacketStats{}
	l := NewUDPListener(UDPListenerConfig{Stats: stats})

	scratch := make([]int16, 8)
	l.sink = nil
	l.handlePacket(make([]byte, 6), scratch) // not a whole pair count
	if got := stats.malformed.Load(); got != 1 {
		t.Errorf("malformed = %d, want 1", got)
	}
	if got := stats.packets.Load(); got != 1 {
		t.Errorf("packets = %d, want 1", got)
	}
}
