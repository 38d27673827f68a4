package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(http.MethodGet, RouteSnapshot, http.StatusOK, time.Millisecond)
		m.ObserveBatch(3)
	})
}

func TestMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test", prometheus.NewRegistry())
	m.RecordRequest(http.MethodPost, RouteRecords, http.StatusUnprocessableEntity, time.Millisecond)
	m.RecordRequest(http.MethodPost, RouteRecords, http.StatusUnprocessableEntity, time.Millisecond)
	m.ObserveBatch(10)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, RouteRecords, "422")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.batchSize))
}
