// Package protocol implements the datagram format used to stream PCM audio over UDP.
// Every datagram is a little-endian uint32 sequence number followed by a slice of
// the raw audio payload; one datagram maps to exactly one UDP packet.
package protocol
