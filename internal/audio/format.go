package audio

import (
	"fmt"
	"time"

	goaudio "github.com/go-audio/audio"
)

const (
	// FmtChunkSize is the size of a plain PCM fmt chunk body
	FmtChunkSize = 16

	// FormatPCM is the WAVE audio format code for linear PCM
	FormatPCM uint16 = 1
)

// FormatDescriptor is the body of a fmt chunk.
// Field order matches the on-disk layout so it can be decoded in one read.
type FormatDescriptor struct {
	AudioFormat   uint16 `json:"audio_format"` // 1 for PCM
	NumChannels   uint16 `json:"num_channels"` // 1 = mono, 2 = stereo
	SampleRate    uint32 `json:"sample_rate"`
	ByteRate      uint32 `json:"byte_rate"` // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 `json:"block_align"` // NumChannels * BitsPerSample / 8
	BitsPerSample uint16 `json:"bits_per_sample"`
}

// IsPCM reports whether the audio format code is linear PCM
func (f *FormatDescriptor) IsPCM() bool {
	return f.AudioFormat == FormatPCM
}

// ChannelLayout returns a human-readable channel description
func (f *FormatDescriptor) ChannelLayout() string {
	switch f.NumChannels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", f.NumChannels)
	}
}

// Format converts the descriptor into a go-audio format
func (f *FormatDescriptor) Format() *goaudio.Format {
	if f == nil {
		return nil
	}

	return &goaudio.Format{
		NumChannels: int(f.NumChannels),
		SampleRate:  int(f.SampleRate),
	}
}

// Duration returns the playback time of n payload bytes, or 0 when the rate cannot be known.
// A zero ByteRate field is derived from the sample rate, channel count and sample width.
func (f *FormatDescriptor) Duration(n uint32) time.Duration {
	rate := f.bytesPerSecond()
	if rate == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}

func (f *FormatDescriptor) bytesPerSecond() uint64 {
	if f == nil {
		return 0
	}
	if f.ByteRate != 0 {
		return uint64(f.ByteRate)
	}

	af := f.Format()
	return uint64(af.SampleRate) * uint64(af.NumChannels) * uint64(f.BitsPerSample) / 8
}

// String returns a human-readable representation of the format
func (f *FormatDescriptor) String() string {
	return fmt.Sprintf("Format{AudioFormat:%d, Channels:%s, SampleRate:%d, ByteRate:%d, BlockAlign:%d, BitsPerSample:%d}",
		f.AudioFormat, f.ChannelLayout(), f.SampleRate, f.ByteRate, f.BlockAlign, f.BitsPerSample)
}
