package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
)

// countingRecorder 记录收到的度量条数
type countingRecorder struct {
	metrics []Metric
	closed  bool
}

func (r *countingRecorder) Record(m Metric) {
	r.metrics = append(r.metrics, m)
}

func (r *countingRecorder) Close() error {
	r.closed = true
	return nil
}

func sampleMetric() Metric {
	return Metric{
		RequestID: "req-1",
		Operation: "quote",
		Symbol:    "603060.SH",
		Source:    core.SourceSina,
		State:     "succeeded",
		Attempts:  1,
		Duration:  120 * time.Millisecond,
		Timestamp: time.Now(),
	}
}

func TestLogRecorder_Record(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	rec := NewLogRecorder()
	defer rec.Close()

	// 成功请求记 info
	rec.Record(sampleMetric())
	assert.Contains(t, buf.String(), "request completed")
	assert.Contains(t, buf.String(), "operation=quote")
	assert.Contains(t, buf.String(), "source=sina")

	// 失败请求记 warning 并带错误
	buf.Reset()
	m := sampleMetric()
	m.State = "failed"
	m.Err = core.Permanent(core.SourceSina, "symbol not listed", nil)
	rec.Record(m)
	assert.Contains(t, buf.String(), "request failed")
	assert.Contains(t, buf.String(), "symbol not listed")
}

func TestMultiRecorder_Broadcast(t *testing.T) {
	first := &countingRecorder{}
	second := &countingRecorder{}
	multi := NewMultiRecorder(first, NullRecorder{}, second)

	multi.Record(sampleMetric())
	multi.Record(sampleMetric())

	assert.Len(t, first.metrics, 2)
	assert.Len(t, second.metrics, 2)

	require.NoError(t, multi.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestInfluxRecorder_WritesPoint(t *testing.T) {
	var (
		mu   sync.Mutex
		body strings.Builder
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/health"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"name":"influxdb","message":"ready","status":"pass"}`)
		case strings.Contains(r.URL.Path, "/api/v2/write"):
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			body.Write(b)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	rec, err := NewInfluxRecorder(InfluxConfig{
		URL:    server.URL,
		Token:  "test-token",
		Org:    "test-org",
		Bucket: "metrics",
	})
	require.NoError(t, err)

	m := sampleMetric()
	m.Err = nil
	rec.Record(m)

	failed := sampleMetric()
	failed.State = "failed"
	failed.Attempts = 4
	failed.Err = core.Transient(core.SourceSina, "upstream 503", nil)
	rec.Record(failed)

	// Close 刷出缓冲，保证两个点都已提交
	require.NoError(t, rec.Close())

	mu.Lock()
	written := body.String()
	mu.Unlock()

	assert.Contains(t, written, "request_outcome")
	assert.Contains(t, written, "operation=quote")
	assert.Contains(t, written, "source=sina")
	assert.Contains(t, written, "state=succeeded")
	assert.Contains(t, written, "state=failed")
	assert.Contains(t, written, `request_id="req-1"`)
	assert.Contains(t, written, "attempts=4i")
	assert.Contains(t, written, "upstream 503")
}

func TestInfluxRecorder_HealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"influxdb","message":"not ready","status":"fail"}`)
	}))
	defer server.Close()

	_, err := NewInfluxRecorder(InfluxConfig{URL: server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}
