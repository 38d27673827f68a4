package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/health"
	"github.com/vyrodovalexey/recordflow/internal/transform"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeProcessor lets tests control what the API receives from the
// transformer.
type fakeProcessor struct {
	processJSON func(ctx context.Context, data []byte) (transform.Record, error)
}

func (f *fakeProcessor) ProcessJSON(ctx context.Context, data []byte) (transform.Record, error) {
	return f.processJSON(ctx, data)
}

func (f *fakeProcessor) ProcessBatch(context.Context, []interface{}) []transform.BatchResult {
	return nil
}

func (f *fakeProcessor) Metrics() transform.MetricsSnapshot {
	return transform.MetricsSnapshot{}
}

func newTransformer(t *testing.T, strict bool) *transform.RecordTransformer {
	t.Helper()

	tr, err := transform.New(&config.TransformerConfig{
		StrictRules: strict,
		BusinessRules: []config.Rule{
			{Name: "name-required", Type: config.RuleTypeValidation, Field: "name", Condition: config.ConditionRequired},
			{Name: "upper-name", Type: config.RuleTypeTransformation, Field: "name", Operation: config.OperationUppercase},
		},
	})
	require.NoError(t, err)
	return tr
}

func serverConfig() *config.ServerConfig {
	return config.DefaultConfig().Spec.Server
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_ProcessRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strict   bool
		body     string
		status   int
		expected ErrorResponse
	}{
		{
			name:     "validation failure",
			body:     `{"email":"a@b.c"}`,
			status:   http.StatusUnprocessableEntity,
			expected: ErrorResponse{Field: "name", Condition: config.ConditionRequired},
		},
		{
			name:   "array is invalid input",
			body:   `[1,2]`,
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed json",
			body:   `{"name":`,
			status: http.StatusBadRequest,
		},
		{
			name:     "strict rule failure",
			strict:   true,
			body:     `{"name":42}`,
			status:   http.StatusUnprocessableEntity,
			expected: ErrorResponse{Field: "name", Rule: "upper-name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := New(serverConfig(), newTransformer(t, tt.strict))
			w := do(t, s.Handler(), http.MethodPost, RouteRecords, tt.body)

			require.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[ErrorResponse](t, w)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.expected.Field, resp.Field)
			assert.Equal(t, tt.expected.Condition, resp.Condition)
			assert.Equal(t, tt.expected.Rule, resp.Rule)
		})
	}
}

func TestServer_ProcessRecord_Success(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))
	w := do(t, s.Handler(), http.MethodPost, RouteRecords, `{"name":"alice","age":30}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	out := decode[map[string]interface{}](t, w)
	assert.Equal(t, "ALICE", out["name"])
	assert.Equal(t, float64(30), out["age"])
	assert.Equal(t, true, out["processed"])
	assert.NotEmpty(t, out["id"])
	assert.NotEmpty(t, out["hash"])
	assert.Contains(t, out, "metadata")
}

func TestServer_NonStrictSkipsFailingRule(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))
	w := do(t, s.Handler(), http.MethodPost, RouteRecords, `{"name":42}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[map[string]interface{}](t, w)
	assert.Equal(t, float64(42), out["name"])
}

func TestServer_BodyLimit(t *testing.T) {
	t.Parallel()

	cfg := serverConfig()
	cfg.MaxBodyBytes = 16

	s := New(cfg, newTransformer(t, false))
	w := do(t, s.Handler(), http.MethodPost, RouteRecords, `{"name":"`+strings.Repeat("x", 64)+`"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "request body too large", decode[ErrorResponse](t, w).Error)
}

func TestServer_Batch(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))
	w := do(t, s.Handler(), http.MethodPost, RouteBatch, `[{"name":"a"},{"other":1},5]`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[BatchResponse](t, w)

	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 2, resp.Failed)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, 0, resp.Results[0].Index)
	assert.Equal(t, http.StatusOK, resp.Results[0].Status)
	assert.Equal(t, "A", resp.Results[0].Record["name"])
	assert.Nil(t, resp.Results[0].ErrorResponse)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Results[1].Status)
	require.NotNil(t, resp.Results[1].ErrorResponse)
	assert.Equal(t, "name", resp.Results[1].Field)
	assert.Nil(t, resp.Results[1].Record)

	assert.Equal(t, 2, resp.Results[2].Index)
	assert.Equal(t, http.StatusBadRequest, resp.Results[2].Status)
}

func TestServer_Batch_NotAnArray(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))
	w := do(t, s.Handler(), http.MethodPost, RouteBatch, `{"name":"a"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Error, "JSON array")
}

func TestServer_Batch_Empty(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))
	w := do(t, s.Handler(), http.MethodPost, RouteBatch, `[]`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[BatchResponse](t, w)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Succeeded)
	assert.Zero(t, resp.Failed)
}

func TestServer_Snapshot(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))
	h := s.Handler()

	do(t, h, http.MethodPost, RouteRecords, `{"name":"a"}`)
	do(t, h, http.MethodPost, RouteRecords, `{}`)

	w := do(t, h, http.MethodGet, RouteSnapshot, "")
	require.Equal(t, http.StatusOK, w.Code)

	snap := decode[transform.MetricsSnapshot](t, w)
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(1), snap.Errors)
	assert.InDelta(t, 0.5, snap.SuccessRate, 1e-9)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	checker := health.NewChecker("test")
	s := New(serverConfig(), newTransformer(t, false), WithHealthChecker(checker))
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, RouteHealth, "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, RouteReady, "").Code)

	checker.SetDraining(true)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, RouteReady, "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, RouteHealth, "").Code)
}

func TestServer_NoHealthRoutesWithoutChecker(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, RouteHealth, "").Code)
}

func TestServer_PrometheusAndRequestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	s := New(serverConfig(), newTransformer(t, false),
		WithMetrics(m),
		WithPrometheusHandler("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	h := s.Handler()

	do(t, h, http.MethodPost, RouteRecords, `{"name":"a"}`)
	do(t, h, http.MethodPost, RouteRecords, `{}`)
	do(t, h, http.MethodPost, RouteBatch, `[{"name":"a"},{"name":"b"}]`)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, RouteRecords, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, RouteRecords, "422")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, RouteBatch, "200")))

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
	assert.Contains(t, w.Body.String(), "test_http_batch_size")
}

func TestServer_RequestIDPropagation(t *testing.T) {
	t.Parallel()

	var seen string
	proc := &fakeProcessor{processJSON: func(ctx context.Context, _ []byte) (transform.Record, error) {
		seen = util.RequestIDFromContext(ctx)
		return transform.Record{"ok": true}, nil
	}}

	s := New(serverConfig(), proc)
	w := do(t, s.Handler(), http.MethodPost, RouteRecords, `{}`, RequestIDHeader, "req-123")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", seen)
}

func TestServer_InternalErrorAndPanic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		logged  string
		process func(context.Context, []byte) (transform.Record, error)
	}{
		{
			name:   "unexpected error",
			logged: "record processing failed",
			process: func(context.Context, []byte) (transform.Record, error) {
				return nil, errors.New("boom")
			},
		},
		{
			name:   "panic",
			logged: "panic recovered",
			process: func(context.Context, []byte) (transform.Record, error) {
				panic("boom")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, logs := observedLogger(zapcore.DebugLevel)
			s := New(serverConfig(), &fakeProcessor{processJSON: tt.process}, WithLogger(logger))
			w := do(t, s.Handler(), http.MethodPost, RouteRecords, `{}`)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "internal server error", decode[ErrorResponse](t, w).Error)
			assert.NotContains(t, w.Body.String(), "boom")
			assert.Equal(t, 1, logs.FilterMessage(tt.logged).Len())
		})
	}
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{name: "invalid input", err: util.NewInvalidInputError(nil), status: http.StatusBadRequest},
		{
			name:   "validation",
			err:    util.NewRuleValidationError("email", config.ConditionRequired, "field is required"),
			status: http.StatusUnprocessableEntity,
			field:  "email",
		},
		{
			name:   "wrapped validation",
			err:    fmt.Errorf("ctx: %w", util.NewRuleValidationError("a.b", config.ConditionMinLength, "")),
			status: http.StatusUnprocessableEntity,
			field:  "a.b",
		},
		{
			name:   "execution",
			err:    util.NewRuleExecutionError(2, "", config.RuleTypeEnrichment, "total", errors.New("x")),
			status: http.StatusUnprocessableEntity,
			field:  "total",
		},
		{name: "other", err: context.Canceled, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, resp := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.field, resp.Field)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false), WithHealthChecker(health.NewChecker("test")))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ln)
	}()

	require.Eventually(t, s.IsRunning, time.Second, 10*time.Millisecond)

	resp, err := http.Post("http://"+ln.Addr().String()+RouteRecords, "application/json",
		bytes.NewBufferString(`{"name":"bob"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Shutdown(ctx))
}

func TestServer_ServeTwice(t *testing.T) {
	t.Parallel()

	s := New(serverConfig(), newTransformer(t, false))

	ln1, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln1) }()
	require.Eventually(t, s.IsRunning, time.Second, 10*time.Millisecond)

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Error(t, s.Serve(ln2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
