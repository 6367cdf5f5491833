package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordChunk(t *testing.T) {
	m := NewMetrics()

	m.RecordChunk("fmt", 16)
	m.RecordChunk("unknown", 100)
	m.RecordChunk("unknown", 28)

	if got := testutil.ToFloat64(m.ChunksParsed.WithLabelValues("unknown")); got != 2 {
		t.Errorf("Expected 2 unknown chunks, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChunksParsed.WithLabelValues("fmt")); got != 1 {
		t.Errorf("Expected 1 fmt chunk, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesSkipped); got != 128 {
		t.Errorf("Expected 128 skipped bytes, got %v", got)
	}
}

func TestRecordDatagramSent(t *testing.T) {
	m := NewMetrics()

	m.RecordDatagramSent(1024, 0.0001)
	m.RecordDatagramSent(1024, 0.0001)
	m.RecordDatagramSent(452, 0.0001)
	m.RecordSendError()

	if got := testutil.ToFloat64(m.DatagramsSent); got != 3 {
		t.Errorf("Expected 3 datagrams, got %v", got)
	}
	if got := testutil.ToFloat64(m.PayloadBytesSent); got != 2500 {
		t.Errorf("Expected 2500 payload bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.SendErrors); got != 1 {
		t.Errorf("Expected 1 send error, got %v", got)
	}
}

func TestMetricsAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordFormatWarning("audio_format")

	if got := testutil.ToFloat64(b.FormatWarnings.WithLabelValues("audio_format")); got != 0 {
		t.Errorf("Expected separate registries, got %v warnings on the second instance", got)
	}

	count, err := testutil.GatherAndCount(a.registry, "wavsend_format_warnings_total")
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 format warning series on the first registry, got %d", count)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordDatagramSent(10, 0.001)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wavsend_datagrams_sent_total 1") {
		t.Errorf("Expected datagram counter in output, got:\n%s", rec.Body.String())
	}
}
