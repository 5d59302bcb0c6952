package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCountsByOutcome(t *testing.T) {
	m := New()
	start := time.Now()

	m.Observe("store", start, OutcomeOK)
	m.Observe("store", start, OutcomeOK)
	m.Observe("get", start, OutcomeNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ops.WithLabelValues("store", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("get", OutcomeNotFound)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ops.WithLabelValues("get", OutcomeError)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("store", time.Now(), OutcomeOK)
		m.SetExported(3)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Observe("search", time.Now(), OutcomeOK)
	m.SetExported(7)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `tracestore_operations_total{op="search",outcome="ok"} 1`)
	assert.Contains(t, string(body), "tracestore_exported_rows 7")
	assert.Contains(t, string(body), "tracestore_operation_duration_seconds_bucket")
}
