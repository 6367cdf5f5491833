package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/JustinOng/esp-32-audio/internal/protocol"
)

// Conn is the outbound datagram socket used by the Fragmenter.
// *net.UDPConn satisfies it.
type Conn interface {
	Write(b []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// DatagramRecorder receives send events, typically for metrics
type DatagramRecorder interface {
	RecordDatagramSent(payloadBytes int, durationSeconds float64)
	RecordSendError()
}

type noopRecorder struct{}

func (noopRecorder) RecordDatagramSent(int, float64) {}
func (noopRecorder) RecordSendError()                {}

// Config contains fragmentation parameters
type Config struct {
	ChunkSize       int           // Payload bytes per datagram
	MaxPayloadBytes uint32        // Caps the bytes sent from the data chunk, 0 = no cap
	WriteTimeout    time.Duration // Per-datagram write deadline, 0 = none
	HexDump         bool          // Log every datagram as hex at debug level
}

// Fragmenter splits an audio payload into sequence-numbered UDP datagrams
type Fragmenter struct {
	conn     Conn
	config   Config
	logger   *slog.Logger
	recorder DatagramRecorder

	// Statistics
	datagramsSent    uint64
	payloadBytesSent uint64
	lastSequence     uint32
	sendErrors       uint64
	targetBytes      uint64
	truncated        bool
	startedAt        time.Time
	finishedAt       time.Time
	mu               sync.RWMutex
}

// Dial opens a UDP socket on an ephemeral local port targeting host:port
func Dial(ctx context.Context, host string, port int, cfg Config, logger *slog.Logger) (*Fragmenter, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket to %s: %w", address, err)
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unexpected connection type %T for %s", conn, address)
	}

	f := NewFragmenter(udpConn, cfg, logger)
	f.logger.Info("UDP socket opened",
		slog.String("local_addr", udpConn.LocalAddr().String()),
		slog.String("remote_addr", udpConn.RemoteAddr().String()),
	)

	return f, nil
}

// NewFragmenter creates a fragmenter over an already connected socket
func NewFragmenter(conn Conn, cfg Config, logger *slog.Logger) *Fragmenter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = protocol.DefaultFragmentSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Fragmenter{
		conn:     conn,
		config:   cfg,
		logger:   logger,
		recorder: noopRecorder{},
	}
}

// SetRecorder registers a recorder for send events
func (f *Fragmenter) SetRecorder(r DatagramRecorder) {
	if r == nil {
		r = noopRecorder{}
	}
	f.recorder = r
}

// PayloadLimit returns how many of the declared bytes will be sent
func (f *Fragmenter) PayloadLimit(declared uint32) uint32 {
	if f.config.MaxPayloadBytes > 0 && f.config.MaxPayloadBytes < declared {
		return f.config.MaxPayloadBytes
	}
	return declared
}

// Send reads up to declared bytes from r and writes them as datagrams numbered from 1.
// A socket error aborts the remaining sends. A payload shorter than declared is sent as far
// as it goes and marks the statistics as truncated.
func (f *Fragmenter) Send(ctx context.Context, r io.Reader, declared uint32) error {
	limit := f.PayloadLimit(declared)

	f.mu.Lock()
	f.targetBytes = uint64(limit)
	f.startedAt = time.Now()
	f.mu.Unlock()

	if limit < declared {
		f.logger.Warn("Payload capped below declared data size",
			slog.Uint64("declared_bytes", uint64(declared)),
			slog.Uint64("max_payload_bytes", uint64(limit)),
		)
	}

	f.logger.Info("Sending audio payload",
		slog.String("remote_addr", f.conn.RemoteAddr().String()),
		slog.Uint64("payload_bytes", uint64(limit)),
		slog.Int("chunk_size", f.config.ChunkSize),
		slog.Uint64("datagrams", protocol.FragmentCount(uint64(limit), f.config.ChunkSize)),
	)

	defer func() {
		f.mu.Lock()
		f.finishedAt = time.Now()
		f.mu.Unlock()
	}()

	payload := make([]byte, f.config.ChunkSize)
	datagram := make([]byte, 0, protocol.SequenceSize+f.config.ChunkSize)

	sequence := protocol.FirstSequence
	remaining := uint64(limit)

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("send aborted before datagram %d: %w", sequence, ctx.Err())
		default:
		}

		size := uint64(f.config.ChunkSize)
		if remaining < size {
			size = remaining
		}

		n, readErr := io.ReadFull(r, payload[:size])
		if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("failed to read payload for datagram %d: %w", sequence, readErr)
		}

		if n > 0 {
			datagram = protocol.AppendDatagram(datagram[:0], sequence, payload[:n])
			if err := f.write(sequence, datagram); err != nil {
				return err
			}
		}

		if readErr != nil {
			f.mu.Lock()
			f.truncated = true
			f.mu.Unlock()

			f.logger.Warn("Audio payload shorter than declared, stopping",
				slog.Uint64("expected_bytes", uint64(limit)),
				slog.Uint64("sent_bytes", uint64(limit)-remaining+uint64(n)),
			)
			return nil
		}

		remaining -= size
		sequence++
	}

	return nil
}

// write sends one encoded datagram and updates statistics
func (f *Fragmenter) write(sequence uint32, datagram []byte) error {
	payloadLen := len(datagram) - protocol.SequenceSize

	if f.config.HexDump {
		f.logger.Debug("Datagram contents",
			slog.Uint64("sequence", uint64(sequence)),
			slog.String("hex", (&protocol.Datagram{Sequence: sequence, Payload: datagram[protocol.SequenceSize:]}).HexDump()),
		)
	}

	if f.config.WriteTimeout > 0 {
		if err := f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline for datagram %d: %w", sequence, err)
		}
	}

	start := time.Now()
	if _, err := f.conn.Write(datagram); err != nil {
		f.mu.Lock()
		f.sendErrors++
		f.mu.Unlock()
		f.recorder.RecordSendError()

		return fmt.Errorf("failed to send datagram %d: %w", sequence, err)
	}
	elapsed := time.Since(start)

	f.mu.Lock()
	f.datagramsSent++
	f.payloadBytesSent += uint64(payloadLen)
	f.lastSequence = sequence
	f.mu.Unlock()

	f.recorder.RecordDatagramSent(payloadLen, elapsed.Seconds())

	f.logger.Debug("Sending packet",
		slog.Uint64("sequence", uint64(sequence)),
		slog.Int("payload_size", payloadLen),
	)

	return nil
}

// Close closes the underlying socket
func (f *Fragmenter) Close() error {
	return f.conn.Close()
}

// GetStatistics returns current fragmenter statistics
func (f *Fragmenter) GetStatistics() Statistics {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stats := Statistics{
		DatagramsSent:    f.datagramsSent,
		PayloadBytesSent: f.payloadBytesSent,
		TargetBytes:      f.targetBytes,
		LastSequence:     f.lastSequence,
		SendErrors:       f.sendErrors,
		Truncated:        f.truncated,
	}

	switch {
	case f.startedAt.IsZero():
	case f.finishedAt.IsZero():
		stats.Elapsed = time.Since(f.startedAt)
	default:
		stats.Elapsed = f.finishedAt.Sub(f.startedAt)
	}

	return stats
}

// Statistics represents fragmenter progress
type Statistics struct {
	DatagramsSent    uint64        `json:"datagrams_sent"`
	PayloadBytesSent uint64        `json:"payload_bytes_sent"`
	TargetBytes      uint64        `json:"target_bytes"`
	LastSequence     uint32        `json:"last_sequence"`
	SendErrors       uint64        `json:"send_errors"`
	Truncated        bool          `json:"truncated"`
	Elapsed          time.Duration `json:"elapsed_ns"`
}
