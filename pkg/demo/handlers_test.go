// Tests for the HTTP contract and per-request span trees.
// Uses in-memory exporters so no collector or network is involved.
package demo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// capture bundles the in-memory sinks for all three signals.
type capture struct {
	spans   *tracetest.InMemoryExporter
	metrics *sdkmetric.ManualReader
	logs    *memoryLogExporter
}

type memoryLogExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) get() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sdklog.Record, len(e.records))
	copy(out, e.records)
	return out
}

// newTestService builds a Service wired to in-memory telemetry with zero
// simulated latency. mutate may adjust the options before construction.
func newTestService(t *testing.T, mutate func(*ServiceOptions)) (*Service, *capture) {
	t.Helper()

	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	logs := &memoryLogExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(logs)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	opts := ServiceOptions{
		TracerProvider: tp,
		MeterProvider:  mp,
		Logger:         otelslog.NewLogger("otel-sample-app", otelslog.WithLoggerProvider(lp)),
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc, err := NewService(opts)
	require.NoError(t, err)
	return svc, &capture{spans: spans, metrics: reader, logs: logs}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), into))
}

func findSpan(spans []tracetest.SpanStub, name string) (tracetest.SpanStub, bool) {
	for _, s := range spans {
		if s.Name == name {
			return s, true
		}
	}
	return tracetest.SpanStub{}, false
}

func spanAttr(span tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRootEndpoint(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	rr := get(t, svc.Routes(), "/")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	decodeBody(t, rr, &body)
	assert.Equal(t, "Hello from OTel Sample App!", body.Message)
	assert.Equal(t, "success", body.Status)

	spans := tel.spans.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "handle-root", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
	assert.False(t, spans[0].Parent.IsValid(), "root span should have no parent")

	v, ok := spanAttr(spans[0], "custom.attribute")
	require.True(t, ok)
	assert.Equal(t, "hello-world", v.AsString())
}

func TestUsersEndpoint(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	rr := get(t, svc.Routes(), "/api/users")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Users []User `json:"users"`
	}
	decodeBody(t, rr, &body)
	require.Len(t, body.Users, 3)
	assert.Equal(t, "Alice", body.Users[0].Name)
	assert.Equal(t, "charlie@example.com", body.Users[2].Email)

	spans := tel.spans.GetSpans()
	require.Len(t, spans, 2, "should have root + child span")

	root, ok := findSpan(spans, "get-users")
	require.True(t, ok)
	child, ok := findSpan(spans, "fetch-users")
	require.True(t, ok)

	assert.Equal(t, root.SpanContext.SpanID(), child.Parent.SpanID())
	assert.Equal(t, root.SpanContext.TraceID(), child.SpanContext.TraceID())
	assert.False(t, child.StartTime.Before(root.StartTime))
	assert.False(t, root.EndTime.Before(child.EndTime))

	count, ok := spanAttr(root, "users.count")
	require.True(t, ok)
	assert.Equal(t, int64(3), count.AsInt64())
}

func TestUserByID(t *testing.T) {
	t.Parallel()

	t.Run("known ids return the matching user", func(t *testing.T) {
		t.Parallel()
		svc, tel := newTestService(t, nil)

		for _, want := range DefaultUsers() {
			tel.spans.Reset()
			rr := get(t, svc.Routes(), "/api/users/"+strconv.Itoa(want.ID))
			require.Equal(t, http.StatusOK, rr.Code)

			var body struct {
				User User `json:"user"`
			}
			decodeBody(t, rr, &body)
			assert.Equal(t, want, body.User)

			spans := tel.spans.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "get-user-by-id", spans[0].Name)
			id, ok := spanAttr(spans[0], "user.id")
			require.True(t, ok)
			assert.Equal(t, int64(want.ID), id.AsInt64())
			assert.NotEqual(t, codes.Error, spans[0].Status.Code)
		}
	})

	t.Run("unknown id returns 404 with error span", func(t *testing.T) {
		t.Parallel()
		svc, tel := newTestService(t, nil)

		rr := get(t, svc.Routes(), "/api/users/99")
		require.Equal(t, http.StatusNotFound, rr.Code)

		var body struct {
			Error string `json:"error"`
		}
		decodeBody(t, rr, &body)
		assert.Equal(t, "User not found", body.Error)

		spans := tel.spans.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)

		flagged, ok := spanAttr(spans[0], "error")
		require.True(t, ok)
		assert.True(t, flagged.AsBool())
	})

	t.Run("non-integer id returns 404", func(t *testing.T) {
		t.Parallel()
		svc, tel := newTestService(t, nil)

		rr := get(t, svc.Routes(), "/api/users/alice")
		require.Equal(t, http.StatusNotFound, rr.Code)

		spans := tel.spans.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
	})
}

func TestSlowEndpoint(t *testing.T) {
	t.Parallel()

	const delay = 30 * time.Millisecond
	svc, tel := newTestService(t, func(o *ServiceOptions) {
		o.SlowDelay = func() time.Duration { return delay }
	})

	rr := get(t, svc.Routes(), "/api/slow")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Message string  `json:"message"`
		Delay   float64 `json:"delay"`
	}
	decodeBody(t, rr, &body)
	assert.Equal(t, "Slow operation completed", body.Message)
	assert.InDelta(t, delay.Seconds(), body.Delay, 1e-9)

	spans := tel.spans.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "slow-endpoint", spans[0].Name)

	v, ok := spanAttr(spans[0], "delay.seconds")
	require.True(t, ok)
	assert.InDelta(t, delay.Seconds(), v.AsFloat64(), 1e-9)

	assert.GreaterOrEqual(t, spans[0].EndTime.Sub(spans[0].StartTime), delay,
		"span duration should reflect the injected delay")
}

func TestDefaultSlowDelayRange(t *testing.T) {
	t.Parallel()

	for range 200 {
		d := defaultSlowDelay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestErrorEndpoint(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	rr := get(t, svc.Routes(), "/api/error")

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rr, &body)
	assert.Equal(t, "This is a simulated error for testing", body.Error)

	spans := tel.spans.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "error-endpoint", span.Name)
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Equal(t, "This is a simulated error for testing", span.Status.Description)

	kind, ok := spanAttr(span, "error.type")
	require.True(t, ok)
	assert.Equal(t, "SimulatedError", kind.AsString())

	var exceptionEvents int
	for _, ev := range span.Events {
		if ev.Name == "exception" {
			exceptionEvents++
		}
	}
	assert.Equal(t, 1, exceptionEvents, "error should be recorded as an exception event")

	var errorRecords []sdklog.Record
	for _, rec := range tel.logs.get() {
		if rec.Severity() == otellog.SeverityError {
			errorRecords = append(errorRecords, rec)
		}
	}
	require.Len(t, errorRecords, 1, "exactly one error-severity log record")
	assert.Equal(t, span.SpanContext.TraceID(), errorRecords[0].TraceID())
	assert.Equal(t, span.SpanContext.SpanID(), errorRecords[0].SpanID())
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	rr := get(t, svc.Routes(), "/health")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	decodeBody(t, rr, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "otel-sample-app", body.Service)

	assert.Empty(t, tel.spans.GetSpans(), "health checks are untraced")
}

func TestLogsCarrySpanContext(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	rr := get(t, svc.Routes(), "/api/users")
	require.Equal(t, http.StatusOK, rr.Code)

	spans := tel.spans.GetSpans()
	root, ok := findSpan(spans, "get-users")
	require.True(t, ok)

	records := tel.logs.get()
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.Equal(t, root.SpanContext.TraceID(), rec.TraceID(),
			"log record should carry the active trace id")
	}
}

func TestClientDisconnectClosesSpan(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, func(o *ServiceOptions) {
		o.SlowDelay = func() time.Duration { return 10 * time.Second }
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/slow", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		svc.Routes().ServeHTTP(rr, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after cancellation")
	}

	spans := tel.spans.GetSpans()
	require.Len(t, spans, 1, "span must be closed even when the client goes away")
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}
