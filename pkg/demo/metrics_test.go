// Tests for the OTLP-exported request metrics
// Collected through a manual reader; validates names, units, and route-template attributes
package demo

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// routeCount returns the counter value for the datapoint labeled with route,
// or false when no such datapoint was recorded.
func routeCount(t *testing.T, m metricdata.Metrics, route string) (int64, bool) {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "app.requests.total should be an int64 sum")
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value("route"); ok && v.AsString() == route {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestRequestCounterPerRoute(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	h := svc.Routes()

	for range 2 {
		require.Equal(t, http.StatusOK, get(t, h, "/").Code)
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/users").Code)

	rm := collectMetrics(t, tel.metrics)
	m, ok := findMetric(rm, "app.requests.total")
	require.True(t, ok)

	rootCount, ok := routeCount(t, m, "/")
	require.True(t, ok)
	assert.Equal(t, int64(2), rootCount)

	usersCount, ok := routeCount(t, m, "/api/users")
	require.True(t, ok)
	assert.Equal(t, int64(1), usersCount)
}

func TestRequestCounterUsesRouteTemplate(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	h := svc.Routes()

	require.Equal(t, http.StatusOK, get(t, h, "/api/users/1").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/api/users/2").Code)

	rm := collectMetrics(t, tel.metrics)
	m, ok := findMetric(rm, "app.requests.total")
	require.True(t, ok)

	count, ok := routeCount(t, m, "/api/users/{id}")
	require.True(t, ok, "requests should aggregate under the route template")
	assert.Equal(t, int64(2), count)

	_, ok = routeCount(t, m, "/api/users/1")
	assert.False(t, ok, "raw paths must not appear as attribute values")
}

func TestRequestDurationHistogram(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	require.Equal(t, http.StatusOK, get(t, svc.Routes(), "/").Code)

	rm := collectMetrics(t, tel.metrics)
	m, ok := findMetric(rm, "app.request.duration")
	require.True(t, ok)
	assert.Equal(t, "s", m.Unit)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "app.request.duration should be a float64 histogram")
	require.Len(t, hist.DataPoints, 1)

	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(1), dp.Count)
	route, ok := dp.Attributes.Value("route")
	require.True(t, ok)
	assert.Equal(t, "/", route.AsString())
}

func TestMetricsEndpointNotObserved(t *testing.T) {
	t.Parallel()

	svc, tel := newTestService(t, nil)
	h := svc.Routes()

	require.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/").Code)

	rm := collectMetrics(t, tel.metrics)
	m, ok := findMetric(rm, "app.requests.total")
	require.True(t, ok)

	_, ok = routeCount(t, m, "/metrics")
	assert.False(t, ok, "scrapes must not count as application requests")
}
