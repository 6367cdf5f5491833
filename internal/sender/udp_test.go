package sender

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/JustinOng/esp-32-audio/internal/protocol"
)

// fakeConn records writes and can fail a chosen write
type fakeConn struct {
	writes    [][]byte
	failAt    int // 1-based write index that fails, 0 never fails
	deadlines []time.Time
	closed    bool
}

func (c *fakeConn) Write(b []byte) (int, error) {
	if c.failAt > 0 && len(c.writes)+1 == c.failAt {
		return 0, errors.New("network is unreachable")
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(192, 168, 1, 1), Port: 8080}
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type countingRecorder struct {
	sent   int
	bytes  int
	errors int
}

func (r *countingRecorder) RecordDatagramSent(payloadBytes int, _ float64) {
	r.sent++
	r.bytes += payloadBytes
}

func (r *countingRecorder) RecordSendError() { r.errors++ }

func payloadOf(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func parseAll(t *testing.T, writes [][]byte) []*protocol.Datagram {
	t.Helper()
	out := make([]*protocol.Datagram, 0, len(writes))
	for _, w := range writes {
		d, err := protocol.ParseDatagram(w)
		if err != nil {
			t.Fatalf("ParseDatagram failed: %v", err)
		}
		out = append(out, d)
	}
	return out
}

func TestSendFragmentation(t *testing.T) {
	tests := []struct {
		name      string
		available int
		declared  uint32
		config    Config
		sizes     []int
		truncated bool
	}{
		{
			name:      "uneven final datagram",
			available: 2500,
			declared:  2500,
			config:    Config{ChunkSize: 1024},
			sizes:     []int{1024, 1024, 452},
		},
		{
			name:      "evenly divisible",
			available: 3072,
			declared:  3072,
			config:    Config{ChunkSize: 1024},
			sizes:     []int{1024, 1024, 1024},
		},
		{
			name:      "payload cap below declared size",
			available: 8000,
			declared:  8000,
			config:    Config{ChunkSize: 1024, MaxPayloadBytes: 2000},
			sizes:     []int{1024, 976},
		},
		{
			name:      "payload cap above declared size",
			available: 100,
			declared:  100,
			config:    Config{ChunkSize: 1024, MaxPayloadBytes: 2000},
			sizes:     []int{100},
		},
		{
			name:      "custom chunk size",
			available: 1000,
			declared:  1000,
			config:    Config{ChunkSize: 320},
			sizes:     []int{320, 320, 320, 40},
		},
		{
			name:      "file shorter than declared",
			available: 2500,
			declared:  4096,
			config:    Config{ChunkSize: 1024},
			sizes:     []int{1024, 1024, 452},
			truncated: true,
		},
		{
			name:      "file ends on a fragment boundary",
			available: 2048,
			declared:  4096,
			config:    Config{ChunkSize: 1024},
			sizes:     []int{1024, 1024},
			truncated: true,
		},
		{
			name:      "empty data chunk",
			available: 0,
			declared:  0,
			config:    Config{ChunkSize: 1024},
			sizes:     []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{}
			rec := &countingRecorder{}
			f := NewFragmenter(conn, tt.config, nil)
			f.SetRecorder(rec)

			source := payloadOf(tt.available)
			if err := f.Send(context.Background(), bytes.NewReader(source), tt.declared); err != nil {
				t.Fatalf("Send failed: %v", err)
			}

			datagrams := parseAll(t, conn.writes)
			if len(datagrams) != len(tt.sizes) {
				t.Fatalf("Expected %d datagrams, got %d", len(tt.sizes), len(datagrams))
			}

			var reassembled []byte
			for i, d := range datagrams {
				if d.Sequence != uint32(i+1) {
					t.Errorf("Datagram %d: expected sequence %d, got %d", i, i+1, d.Sequence)
				}
				if len(d.Payload) != tt.sizes[i] {
					t.Errorf("Datagram %d: expected %d payload bytes, got %d", i, tt.sizes[i], len(d.Payload))
				}
				reassembled = append(reassembled, d.Payload...)
			}

			if !bytes.Equal(reassembled, source[:len(reassembled)]) {
				t.Error("Reassembled payload does not match the source bytes")
			}

			stats := f.GetStatistics()
			if stats.DatagramsSent != uint64(len(tt.sizes)) {
				t.Errorf("Expected %d datagrams in statistics, got %d", len(tt.sizes), stats.DatagramsSent)
			}
			if stats.PayloadBytesSent != uint64(len(reassembled)) {
				t.Errorf("Expected %d payload bytes in statistics, got %d", len(reassembled), stats.PayloadBytesSent)
			}
			if stats.Truncated != tt.truncated {
				t.Errorf("Expected truncated=%v, got %v", tt.truncated, stats.Truncated)
			}
			if rec.sent != len(tt.sizes) || rec.bytes != len(reassembled) {
				t.Errorf("Recorder saw %d datagrams and %d bytes", rec.sent, rec.bytes)
			}
		})
	}
}

func TestSendAbortsOnSocketError(t *testing.T) {
	conn := &fakeConn{failAt: 2}
	rec := &countingRecorder{}
	f := NewFragmenter(conn, Config{ChunkSize: 1024}, nil)
	f.SetRecorder(rec)

	err := f.Send(context.Background(), bytes.NewReader(payloadOf(5000)), 5000)
	if err == nil {
		t.Fatal("Expected error from failing socket")
	}
	if !strings.Contains(err.Error(), "datagram 2") || !strings.Contains(err.Error(), "network is unreachable") {
		t.Errorf("Expected error to name datagram 2 and the cause, got: %v", err)
	}

	if len(conn.writes) != 1 {
		t.Errorf("Expected sending to stop after the failure, got %d writes", len(conn.writes))
	}

	stats := f.GetStatistics()
	if stats.DatagramsSent != 1 || stats.SendErrors != 1 || stats.LastSequence != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
	if rec.errors != 1 {
		t.Errorf("Expected recorder to see 1 error, got %d", rec.errors)
	}
}

func TestSendHonoursCancellation(t *testing.T) {
	conn := &fakeConn{}
	f := NewFragmenter(conn, Config{ChunkSize: 1024}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.Send(ctx, bytes.NewReader(payloadOf(4096)), 4096)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(conn.writes) != 0 {
		t.Errorf("Expected no datagrams after cancellation, got %d", len(conn.writes))
	}
}

func TestSendSetsWriteDeadline(t *testing.T) {
	conn := &fakeConn{}
	f := NewFragmenter(conn, Config{ChunkSize: 1024, WriteTimeout: 2 * time.Second}, nil)

	before := time.Now()
	if err := f.Send(context.Background(), bytes.NewReader(payloadOf(2048)), 2048); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(conn.deadlines) != 2 {
		t.Fatalf("Expected one deadline per datagram, got %d", len(conn.deadlines))
	}
	for _, d := range conn.deadlines {
		if d.Before(before.Add(2 * time.Second)) {
			t.Errorf("Deadline %v is earlier than expected", d)
		}
	}
}

func TestNewFragmenterDefaultsChunkSize(t *testing.T) {
	conn := &fakeConn{}
	f := NewFragmenter(conn, Config{}, nil)

	if err := f.Send(context.Background(), bytes.NewReader(payloadOf(1500)), 1500); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(conn.writes) != 2 || len(conn.writes[0]) != protocol.SequenceSize+protocol.DefaultFragmentSize {
		t.Errorf("Expected default 1024 byte fragments, got %d writes", len(conn.writes))
	}

	if err := f.Close(); err != nil || !conn.closed {
		t.Error("Expected Close to close the connection")
	}
}

func TestDialSendsOverLoopback(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	port := listener.LocalAddr().(*net.UDPAddr).Port

	f, err := Dial(context.Background(), "127.0.0.1", port, Config{ChunkSize: 1024, WriteTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer f.Close()

	source := payloadOf(2500)
	if err := f.Send(context.Background(), bytes.NewReader(source), uint32(len(source))); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	buf := make([]byte, 65535)
	var reassembled []byte
	expected := []int{1024, 1024, 452}

	for i, size := range expected {
		listener.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("Failed to receive datagram %d: %v", i+1, err)
		}

		d, err := protocol.ParseDatagram(buf[:n])
		if err != nil {
			t.Fatalf("ParseDatagram failed: %v", err)
		}
		if d.Sequence != uint32(i+1) {
			t.Errorf("Expected sequence %d, got %d", i+1, d.Sequence)
		}
		if len(d.Payload) != size {
			t.Errorf("Expected %d payload bytes, got %d", size, len(d.Payload))
		}
		reassembled = append(reassembled, d.Payload...)
	}

	if !bytes.Equal(reassembled, source) {
		t.Error("Received payload does not match the source bytes")
	}
}
