package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Datagram layout constants
const (
	// SequenceSize is the length of the little-endian sequence header
	SequenceSize = 4

	// DefaultFragmentSize is the number of PCM bytes carried per datagram
	DefaultFragmentSize = 1024

	// MaxFragmentSize keeps a datagram inside the largest IPv4 UDP payload
	MaxFragmentSize = 65507 - SequenceSize

	// FirstSequence is the sequence number of the first datagram of a run
	FirstSequence uint32 = 1
)

// ErrDatagramTooShort is returned when a datagram cannot hold a sequence header
var ErrDatagramTooShort = errors.New("datagram too short")

// Datagram represents one UDP packet of the audio stream
// Layout: [Sequence:4 LE][Payload:N]
type Datagram struct {
	Sequence uint32 // Starts at 1, increments by one per datagram
	Payload  []byte // Raw PCM bytes from the data chunk
}

// AppendDatagram appends the encoded datagram to dst and returns the extended slice
func AppendDatagram(dst []byte, sequence uint32, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, sequence)
	return append(dst, payload...)
}

// EncodeDatagram encodes a sequence number and payload into a new datagram
func EncodeDatagram(sequence uint32, payload []byte) []byte {
	return AppendDatagram(make([]byte, 0, SequenceSize+len(payload)), sequence, payload)
}

// ParseDatagram parses a received datagram (4-byte sequence + payload)
func ParseDatagram(data []byte) (*Datagram, error) {
	if len(data) < SequenceSize {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d",
			ErrDatagramTooShort, SequenceSize, len(data))
	}

	datagram := &Datagram{
		Sequence: binary.LittleEndian.Uint32(data[0:SequenceSize]),
	}

	// Copy payload (remaining bytes after sequence)
	if len(data) > SequenceSize {
		datagram.Payload = make([]byte, len(data)-SequenceSize)
		copy(datagram.Payload, data[SequenceSize:])
	}

	return datagram, nil
}

// FragmentCount returns how many datagrams carry total bytes in fragments of size bytes
func FragmentCount(total uint64, size int) uint64 {
	if total == 0 || size <= 0 {
		return 0
	}
	return (total + uint64(size) - 1) / uint64(size)
}

// FragmentSizes lists the payload length of every datagram for a transfer
func FragmentSizes(total uint64, size int) []int {
	count := FragmentCount(total, size)
	sizes := make([]int, 0, count)
	for remaining := total; remaining > 0; {
		n := uint64(size)
		if remaining < n {
			n = remaining
		}
		sizes = append(sizes, int(n))
		remaining -= n
	}
	return sizes
}

// HexDump returns the encoded datagram as a lowercase hex string
func (d *Datagram) HexDump() string {
	return hex.EncodeToString(EncodeDatagram(d.Sequence, d.Payload))
}

// String returns a human-readable representation of the datagram
func (d *Datagram) String() string {
	return fmt.Sprintf("Datagram{Sequence:%d, PayloadLen:%d}", d.Sequence, len(d.Payload))
}
