package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-audio/riff"
)

// RawChunk is an opaque chunk written verbatim between fmt and data
type RawChunk struct {
	ID   [4]byte
	Data []byte
}

// NewPCMFormat returns a linear PCM descriptor with derived byte rate and block alignment
func NewPCMFormat(numChannels, sampleRate, bitsPerSample int) FormatDescriptor {
	blockAlign := numChannels * bitsPerSample / 8
	return FormatDescriptor{
		AudioFormat:   FormatPCM,
		NumChannels:   uint16(numChannels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(bitsPerSample),
	}
}

// EncodeOptions controls chunk layout when building a WAVE file
type EncodeOptions struct {
	// PadOddChunks writes the RIFF pad byte after odd-sized extra chunks.
	// Files built with it must be read with ReaderOptions.PadOddChunks.
	PadOddChunks bool
}

// EncodeWAV builds a WAVE file from a format block, raw PCM bytes and optional extra chunks.
// Extra chunks are written back-to-back without padding, matching the default ReaderOptions.
func EncodeWAV(format FormatDescriptor, pcm []byte, extra ...RawChunk) ([]byte, error) {
	return EncodeWAVWithOptions(format, pcm, EncodeOptions{}, extra...)
}

// EncodeWAVWithOptions is EncodeWAV with explicit layout options.
// The pad byte is never counted in a chunk's declared size.
func EncodeWAVWithOptions(format FormatDescriptor, pcm []byte, opts EncodeOptions, extra ...RawChunk) ([]byte, error) {
	if format.NumChannels == 0 {
		return nil, fmt.Errorf("channel count must be positive")
	}

	body := bytes.NewBuffer(make([]byte, 0, 36+len(pcm)))
	body.Write(riff.WavFormatID[:])

	// fmt chunk
	body.Write(riff.FmtID[:])
	if err := binary.Write(body, binary.LittleEndian, uint32(FmtChunkSize)); err != nil {
		return nil, fmt.Errorf("failed to write fmt chunk size: %w", err)
	}
	if err := binary.Write(body, binary.LittleEndian, format); err != nil {
		return nil, fmt.Errorf("failed to write fmt chunk: %w", err)
	}

	for _, chunk := range extra {
		writeChunk(body, chunk.ID, chunk.Data)
		if opts.PadOddChunks && len(chunk.Data)%2 == 1 {
			body.WriteByte(0)
		}
	}

	writeChunk(body, riff.DataFormatID, pcm)

	// RIFF header wraps everything written so far
	out := bytes.NewBuffer(make([]byte, 0, 8+body.Len()))
	writeChunk(out, riff.RiffID, body.Bytes())

	return out.Bytes(), nil
}

func writeChunk(buf *bytes.Buffer, id [4]byte, data []byte) {
	buf.Write(id[:])
	buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(data))))
	buf.Write(data)
}
