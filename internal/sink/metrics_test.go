package sink

import (
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
		m.RecordDelivery(SinkWebhook, ResultDelivered, time.Millisecond)
		m.SetBreakerState(SinkWebhook, 2)
	})
}

func TestMetrics_SharedRegistry(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	a := NewMetrics("test", registry)
	b := NewMetrics("test", registry)

	a.RecordDelivery(SinkRedis, ResultDelivered, time.Millisecond)
	b.RecordDelivery(SinkRedis, ResultDelivered, time.Millisecond)
	b.RecordDelivery(SinkRedis, ResultDropped, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.deliveries.WithLabelValues(SinkRedis, ResultDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.deliveries.WithLabelValues(SinkRedis, ResultDropped)))
	assert.Equal(t, 1, testutil.CollectAndCount(a.deliveryDuration))

	a.SetBreakerState(SinkWebhook, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.breakerState.WithLabelValues(SinkWebhook)))
}
