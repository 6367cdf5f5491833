package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-audio/riff"
)

var (
	// ErrNotRIFF is returned when the stream does not start with a RIFF chunk.
	ErrNotRIFF = errors.New("not a RIFF file")
	// ErrNotWAVE is returned when the RIFF format tag is not WAVE.
	ErrNotWAVE = errors.New("invalid format")
	// ErrFmtTooSmall is returned when a fmt chunk cannot hold the 16 byte PCM block.
	ErrFmtTooSmall = errors.New("fmt chunk too small")
	// ErrTruncated is returned when the stream ends inside a chunk header or body.
	ErrTruncated = errors.New("truncated file")
	// ErrDataChunkNotFound is returned when the stream ends before a data chunk.
	ErrDataChunkNotFound = errors.New("data chunk not found")
)

// chunkHeaderSize is the 4-byte ID plus the little-endian uint32 size
const chunkHeaderSize = 8

// Chunk kinds reported to a ChunkObserver
const (
	ChunkKindRIFF    = "riff"
	ChunkKindFmt     = "fmt"
	ChunkKindData    = "data"
	ChunkKindUnknown = "unknown"
)

// Format warning kinds reported to a ChunkObserver
const (
	WarningFmtSize     = "fmt_size"
	WarningAudioFormat = "audio_format"
)

// ChunkObserver receives parse events, typically for metrics
type ChunkObserver interface {
	RecordChunk(kind string, size uint32)
	RecordFormatWarning(kind string)
}

type noopObserver struct{}

func (noopObserver) RecordChunk(string, uint32)  {}
func (noopObserver) RecordFormatWarning(string) {}

// ReaderOptions tunes chunk boundary handling
type ReaderOptions struct {
	// PadOddChunks skips the RIFF word-alignment byte after odd-sized
	// chunks that are skipped or consumed before the data chunk.
	PadOddChunks bool
}

// DataChunk is the located data chunk, positioned at its first payload byte
type DataChunk struct {
	Size   uint32            // Declared size from the chunk header
	Offset int64             // Stream offset of the first payload byte
	Format *FormatDescriptor // nil when no fmt chunk preceded the data
	R      io.Reader         // Limited to Size bytes
}

// Reader walks the RIFF chunks of a WAVE stream up to its data chunk
type Reader struct {
	r        *countingReader
	parser   *riff.Parser
	opts     ReaderOptions
	logger   *slog.Logger
	observer ChunkObserver

	seenRIFF bool

	// RIFFSize is the declared size of the RIFF chunk
	RIFFSize uint32
	// Format is the last parsed fmt chunk
	Format *FormatDescriptor
}

// NewReader creates a chunk reader over r. The reader is consumed strictly forward.
func NewReader(r io.Reader, opts ReaderOptions, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cr := &countingReader{r: r}
	return &Reader{
		r:        cr,
		parser:   riff.New(cr),
		opts:     opts,
		logger:   logger,
		observer: noopObserver{},
	}
}

// SetObserver registers an observer for parse events
func (r *Reader) SetObserver(o ChunkObserver) {
	if o == nil {
		o = noopObserver{}
	}
	r.observer = o
}

// Offset returns the number of bytes consumed from the underlying stream
func (r *Reader) Offset() int64 {
	return r.r.n
}

// ReadUntilData parses chunks until the data chunk is reached.
// Chunks following the data chunk are never examined.
func (r *Reader) ReadUntilData() (*DataChunk, error) {
	for {
		offset := r.r.n

		id, size, err := r.parser.IDnSize()
		if err != nil {
			if errors.Is(err, io.EOF) && r.r.n == offset {
				if !r.seenRIFF {
					return nil, fmt.Errorf("%w: empty input", ErrNotRIFF)
				}
				return nil, fmt.Errorf("%w: reached end of file at offset %d", ErrDataChunkNotFound, offset)
			}
			return nil, r.truncated("chunk header", offset, err)
		}

		// IDnSize drops the error from a short size field
		if consumed := r.r.n - offset; consumed < chunkHeaderSize {
			return nil, r.truncated(fmt.Sprintf("%q chunk header", id[:]), offset, io.ErrUnexpectedEOF)
		}

		if !r.seenRIFF && id != riff.RiffID {
			return nil, fmt.Errorf("%w: first chunk is %q", ErrNotRIFF, id[:])
		}

		switch id {
		case riff.RiffID:
			if err := r.readRIFFHeader(size, offset); err != nil {
				return nil, err
			}

		case riff.FmtID:
			format, err := r.readFmtChunk(size, offset)
			if err != nil {
				return nil, err
			}
			r.Format = format

		case riff.DataFormatID:
			r.observer.RecordChunk(ChunkKindData, size)
			r.logger.Info("Data chunk found",
				slog.Uint64("data_size", uint64(size)),
				slog.Int64("offset", r.r.n),
				slog.Duration("duration", r.Format.Duration(size)),
			)

			return &DataChunk{
				Size:   size,
				Offset: r.r.n,
				Format: r.Format,
				R: &riff.Chunk{
					ID:   id,
					Size: int(size),
					R:    io.LimitReader(r.r, int64(size)),
				},
			}, nil

		default:
			if err := r.skipChunk(id, size, offset); err != nil {
				return nil, err
			}
		}
	}
}

// readRIFFHeader validates the format tag following a RIFF chunk header.
// The declared RIFF size is recorded but not skipped: the WAVE sub-chunks follow the tag.
func (r *Reader) readRIFFHeader(size uint32, offset int64) error {
	var format [4]byte
	if err := binary.Read(r.r, binary.BigEndian, &format); err != nil {
		return r.truncated("RIFF format tag", offset, err)
	}

	if format != riff.WavFormatID {
		return fmt.Errorf("%w: %q - %w", ErrNotWAVE, format[:], riff.ErrFmtNotSupported)
	}

	r.seenRIFF = true
	r.RIFFSize = size
	r.observer.RecordChunk(ChunkKindRIFF, size)

	r.logger.Debug("RIFF header parsed",
		slog.Uint64("riff_size", uint64(size)),
		slog.String("format", string(format[:])),
	)

	return nil
}

// readFmtChunk decodes the 16 byte PCM format block and discards any extension bytes
func (r *Reader) readFmtChunk(size uint32, offset int64) (*FormatDescriptor, error) {
	r.observer.RecordChunk(ChunkKindFmt, size)

	if size != FmtChunkSize {
		r.observer.RecordFormatWarning(WarningFmtSize)
		r.logger.Warn("fmt chunk size != 16",
			slog.Uint64("chunk_size", uint64(size)),
			slog.Int64("offset", offset),
		)
	}

	if size < FmtChunkSize {
		return nil, fmt.Errorf("%w: declared %d bytes, need %d", ErrFmtTooSmall, size, FmtChunkSize)
	}

	chunk := &riff.Chunk{
		ID:   riff.FmtID,
		Size: int(size),
		R:    io.LimitReader(r.r, int64(size)),
	}

	format := &FormatDescriptor{}
	if err := chunk.ReadLE(format); err != nil {
		return nil, r.truncated("fmt chunk", offset, err)
	}

	if extra := int64(size) - FmtChunkSize; extra > 0 {
		if _, err := io.CopyN(io.Discard, chunk, extra); err != nil {
			return nil, r.truncated("fmt chunk extension", offset, err)
		}
	}

	if err := r.skipPad(size, offset); err != nil {
		return nil, err
	}

	if !format.IsPCM() {
		r.observer.RecordFormatWarning(WarningAudioFormat)
		r.logger.Warn("audio_format != 1 (PCM)",
			slog.Int("audio_format", int(format.AudioFormat)),
		)
	}

	af := format.Format()
	r.logger.Info("Format chunk parsed",
		slog.String("channels", format.ChannelLayout()),
		slog.Int("num_channels", af.NumChannels),
		slog.Int("sample_rate", af.SampleRate),
		slog.Int("bits_per_sample", int(format.BitsPerSample)),
		slog.Int("byte_rate", int(format.ByteRate)),
		slog.Int("block_align", int(format.BlockAlign)),
	)

	return format, nil
}

// skipChunk discards exactly size bytes of an unrecognised chunk
func (r *Reader) skipChunk(id [4]byte, size uint32, offset int64) error {
	r.observer.RecordChunk(ChunkKindUnknown, size)

	r.logger.Info("Unknown chunk type, skipping",
		slog.String("chunk_id", string(id[:])),
		slog.Uint64("skip_bytes", uint64(size)),
		slog.Int64("offset", offset),
	)

	if _, err := io.CopyN(io.Discard, r.r, int64(size)); err != nil {
		return r.truncated(fmt.Sprintf("%q chunk", id[:]), offset, err)
	}

	return r.skipPad(size, offset)
}

func (r *Reader) skipPad(size uint32, offset int64) error {
	if !r.opts.PadOddChunks || size%2 == 0 {
		return nil
	}

	if _, err := io.CopyN(io.Discard, r.r, 1); err != nil {
		return r.truncated("chunk padding", offset, err)
	}
	return nil
}

// truncated classifies a read failure, mapping early EOF to ErrTruncated
func (r *Reader) truncated(what string, offset int64, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s at offset %d ends at offset %d", ErrTruncated, what, offset, r.r.n)
	}
	return fmt.Errorf("failed to read %s at offset %d: %w", what, offset, err)
}

// countingReader tracks the stream offset for diagnostics
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
