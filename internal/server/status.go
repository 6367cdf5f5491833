package server

import (
	"sync"
	"time"

	"github.com/JustinOng/esp-32-audio/internal/audio"
	"github.com/JustinOng/esp-32-audio/internal/sender"
)

// Transfer phases
const (
	PhaseParsing = "parsing"
	PhaseSending = "sending"
	PhaseDone    = "done"
	PhaseFailed  = "failed"
)

// StatisticsSource provides live fragmenter statistics
type StatisticsSource interface {
	GetStatistics() sender.Statistics
}

// Tracker publishes the state of the running transfer to the HTTP handlers
type Tracker struct {
	file        string
	destination string
	phase       string
	lastError   string
	format      *audio.FormatDescriptor
	dataSize    uint32
	source      StatisticsSource
	startTime   time.Time

	mu sync.RWMutex
}

// TransferStatus is a point-in-time view of the transfer
type TransferStatus struct {
	File        string                  `json:"file"`
	Destination string                  `json:"destination"`
	Phase       string                  `json:"phase"`
	Error       string                  `json:"error,omitempty"`
	Format      *audio.FormatDescriptor `json:"format,omitempty"`
	DataSize    uint32                  `json:"data_size"`
	Sender      *sender.Statistics      `json:"sender,omitempty"`
	Uptime      string                  `json:"uptime"`
}

// NewTracker creates a tracker for one file transfer
func NewTracker(file, destination string) *Tracker {
	return &Tracker{
		file:        file,
		destination: destination,
		phase:       PhaseParsing,
		startTime:   time.Now(),
	}
}

// SetDataChunk records the located data chunk
func (t *Tracker) SetDataChunk(data *audio.DataChunk) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.format = data.Format
	t.dataSize = data.Size
}

// AttachSender switches the tracker to the sending phase
func (t *Tracker) AttachSender(source StatisticsSource) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.source = source
	t.phase = PhaseSending
}

// Finish marks the transfer as done, or failed when err is non-nil
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.phase = PhaseFailed
		t.lastError = err.Error()
		return
	}
	t.phase = PhaseDone
}

// Status returns the current transfer status
func (t *Tracker) Status() TransferStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := TransferStatus{
		File:        t.file,
		Destination: t.destination,
		Phase:       t.phase,
		Error:       t.lastError,
		Format:      t.format,
		DataSize:    t.dataSize,
		Uptime:      time.Since(t.startTime).String(),
	}

	if t.source != nil {
		stats := t.source.GetStatistics()
		status.Sender = &stats
	}

	return status
}
