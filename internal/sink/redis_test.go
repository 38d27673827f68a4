package sink

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/transform"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

// setupMiniRedis creates a miniredis server for testing.
func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return mr
}

func testEntry() transform.ErrorEntry {
	return transform.ErrorEntry{
		Error:     "validation failed for field email (required)",
		Kind:      transform.ResultValidationError,
		Stack:     "goroutine 1 [running]:",
		RecordID:  "r1",
		Record:    transform.Record{"id": "r1", "name": "x"},
		Timestamp: testTime,
	}
}

func TestNewRedisErrorLog(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		_, err := NewRedisErrorLog(nil)
		assert.ErrorIs(t, err, util.ErrConfigInvalid)
	})

	t.Run("missing address", func(t *testing.T) {
		t.Parallel()

		_, err := NewRedisErrorLog(&config.RedisSinkConfig{Enabled: true})
		assert.ErrorIs(t, err, util.ErrConfigInvalid)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		mr := setupMiniRedis(t)

		l, err := NewRedisErrorLog(&config.RedisSinkConfig{Address: mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = l.Close() })

		assert.Equal(t, config.DefaultRedisStream, l.Stream())
		assert.Equal(t, int64(config.DefaultRedisMaxLen), l.maxLen)
		assert.Equal(t, config.DefaultSinkTimeout, l.timeout)
		assert.NoError(t, l.Ping(context.Background()))
	})
}

func TestRedisErrorLog_Record(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	registry := prometheus.NewRegistry()
	metrics := NewMetrics("test", registry)

	l, err := NewRedisErrorLog(&config.RedisSinkConfig{
		Address: mr.Addr(),
		Stream:  "test:errors",
		MaxLen:  100,
	}, WithRedisMetrics(metrics))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.Record(context.Background(), testEntry()))
	require.NoError(t, l.Record(context.Background(), testEntry()))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	msgs, err := client.XRange(context.Background(), "test:errors", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	values := msgs[0].Values
	assert.Equal(t, transform.ResultValidationError, values[StreamFieldKind])
	assert.Equal(t, "r1", values[StreamFieldRecordID])
	assert.Equal(t, "2024-03-05T07:08:09Z", values[StreamFieldTimestamp])

	raw, ok := values[StreamFieldEntry].(string)
	require.True(t, ok)

	var entry transform.ErrorEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.Equal(t, "goroutine 1 [running]:", entry.Stack)
	assert.Equal(t, "x", entry.Record["name"])

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.deliveries.WithLabelValues(SinkRedis, ResultDelivered)))
}

func TestRedisErrorLog_SharedClient(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedisErrorLog(&config.RedisSinkConfig{}, WithRedisClient(client))
	require.NoError(t, err)

	require.NoError(t, l.Record(context.Background(), testEntry()))
	require.NoError(t, l.Close())

	n, err := client.XLen(context.Background(), config.DefaultRedisStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisErrorLog_Unavailable(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics("test", registry)

	l, err := NewRedisErrorLog(&config.RedisSinkConfig{Address: mr.Addr()},
		WithRedisRetry(fastRetry(-1)), WithRedisMetrics(metrics))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	mr.Close()

	assert.Error(t, l.Ping(context.Background()))

	err = l.Record(context.Background(), testEntry())
	assert.ErrorIs(t, err, util.ErrSinkUnavail)

	var serr *util.SinkError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, SinkRedis, serr.Sink)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.deliveries.WithLabelValues(SinkRedis, ResultFailed)))
}

func TestRedisErrorLog_WrongTypeNotRetried(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	require.NoError(t, mr.Set("test:errors", "not a stream"))

	l, err := NewRedisErrorLog(&config.RedisSinkConfig{Address: mr.Addr(), Stream: "test:errors"},
		WithRedisRetry(fastRetry(5)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	err = l.Record(context.Background(), testEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WRONGTYPE")
}

func TestIsRetryableRedisError(t *testing.T) {
	t.Parallel()

	assert.False(t, isRetryableRedisError(nil))
	assert.False(t, isRetryableRedisError(context.Canceled))
	assert.False(t, isRetryableRedisError(redis.Nil))
	assert.True(t, isRetryableRedisError(assert.AnError))
}
