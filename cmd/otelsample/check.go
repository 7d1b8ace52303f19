// Self-test: runs every endpoint against an in-process instance wired to
// in-memory exporters and verifies the responses and the telemetry they emit.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sreejareddy7683/Otel/pkg/demo"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Self-test the instrumented endpoints in-process",
		Long: "Self-test the instrumented endpoints in-process.\n\n" +
			"Each check runs against a fresh instance wired to in-memory exporters:\n" +
			"no collector, network, or configuration is needed. Exits non-zero when\n" +
			"any check fails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := runChecks()
			failed := renderChecks(cmd.OutOrStdout(), results)
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}
}

type checkResult struct {
	name string
	err  error
}

func runChecks() []checkResult {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"root endpoint", checkRootEndpoint},
		{"users list span tree", checkUsersList},
		{"user lookup hit and miss", checkUserLookup},
		{"order workflow spans", checkOrderWorkflow},
		{"slow endpoint delay", checkSlowEndpoint},
		{"error endpoint telemetry", checkErrorTelemetry},
		{"health endpoint untraced", checkHealthUntraced},
		{"metrics exposition", checkExposition},
		{"request counter accuracy", checkCounterAccuracy},
	}

	results := make([]checkResult, 0, len(checks))
	for _, c := range checks {
		results = append(results, checkResult{name: c.name, err: c.fn()})
	}
	return results
}

func renderChecks(out io.Writer, results []checkResult) int {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"CHECK", "RESULT", "DETAIL"})

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			tw.AppendRow(table.Row{r.name, "FAIL", r.err.Error()})
			continue
		}
		tw.AppendRow(table.Row{r.name, "PASS", ""})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d passed", len(results)-failed, len(results)), ""})
	tw.Render()
	return failed
}

// logRecorder is an in-memory sdklog exporter for the self-test.
type logRecorder struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (r *logRecorder) Export(_ context.Context, records []sdklog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records = append(r.records, rec.Clone())
	}
	return nil
}

func (r *logRecorder) Shutdown(context.Context) error   { return nil }
func (r *logRecorder) ForceFlush(context.Context) error { return nil }

func (r *logRecorder) get() []sdklog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sdklog.Record, len(r.records))
	copy(out, r.records)
	return out
}

// harness is one fresh in-process instance with captured telemetry.
type harness struct {
	handler http.Handler
	spans   *tracetest.InMemoryExporter
	logs    *logRecorder
}

func newHarness(slowDelay time.Duration) (*harness, error) {
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))

	logs := &logRecorder{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(logs)))

	svc, err := demo.NewService(demo.ServiceOptions{
		TracerProvider: tp,
		Logger:         otelslog.NewLogger("otelsample-check", otelslog.WithLoggerProvider(lp)),
		SlowDelay:      func() time.Duration { return slowDelay },
	})
	if err != nil {
		return nil, err
	}

	return &harness{handler: svc.Routes(), spans: spans, logs: logs}, nil
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func (h *harness) getJSON(path string, wantStatus int, into any) error {
	rr := h.get(path)
	if rr.Code != wantStatus {
		return fmt.Errorf("GET %s: expected status %d, got %d", path, wantStatus, rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), into); err != nil {
		return fmt.Errorf("GET %s: decoding body: %w", path, err)
	}
	return nil
}

func (h *harness) findSpan(name string) (tracetest.SpanStub, error) {
	for _, s := range h.spans.GetSpans() {
		if s.Name == name {
			return s, nil
		}
	}
	return tracetest.SpanStub{}, fmt.Errorf("span %q was not recorded", name)
}

func checkRootEndpoint() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	var body struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := h.getJSON("/", http.StatusOK, &body); err != nil {
		return err
	}
	if body.Message != "Hello from OTel Sample App!" || body.Status != "success" {
		return fmt.Errorf("unexpected body: message=%q status=%q", body.Message, body.Status)
	}

	_, err = h.findSpan("handle-root")
	return err
}

func checkUsersList() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	var body struct {
		Users []demo.User `json:"users"`
	}
	if err := h.getJSON("/api/users", http.StatusOK, &body); err != nil {
		return err
	}
	if len(body.Users) != len(demo.DefaultUsers()) {
		return fmt.Errorf("expected %d users, got %d", len(demo.DefaultUsers()), len(body.Users))
	}

	root, err := h.findSpan("get-users")
	if err != nil {
		return err
	}
	child, err := h.findSpan("fetch-users")
	if err != nil {
		return err
	}
	if child.Parent.SpanID() != root.SpanContext.SpanID() {
		return fmt.Errorf("fetch-users is not a child of get-users")
	}
	if child.StartTime.Before(root.StartTime) || root.EndTime.Before(child.EndTime) {
		return fmt.Errorf("fetch-users interval escapes its parent")
	}
	return nil
}

func checkUserLookup() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	var hit struct {
		User demo.User `json:"user"`
	}
	if err := h.getJSON("/api/users/1", http.StatusOK, &hit); err != nil {
		return err
	}
	if hit.User.Name != "Alice" {
		return fmt.Errorf("expected user 1 to be Alice, got %q", hit.User.Name)
	}

	h.spans.Reset()
	var miss struct {
		Error string `json:"error"`
	}
	if err := h.getJSON("/api/users/99", http.StatusNotFound, &miss); err != nil {
		return err
	}
	if miss.Error != "User not found" {
		return fmt.Errorf("unexpected 404 body: %q", miss.Error)
	}

	span, err := h.findSpan("get-user-by-id")
	if err != nil {
		return err
	}
	if span.Status.Code != codes.Error {
		return fmt.Errorf("404 lookup should set span status to error, got %v", span.Status.Code)
	}
	return nil
}

func checkOrderWorkflow() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	var body struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Total   string `json:"total"`
	}
	if err := h.getJSON("/api/orders", http.StatusOK, &body); err != nil {
		return err
	}
	if body.Total != "119.97" || body.Status != "created" {
		return fmt.Errorf("unexpected order summary: status=%q total=%q", body.Status, body.Total)
	}

	root, err := h.findSpan("create-order")
	if err != nil {
		return err
	}
	for _, name := range []string{"validate-order", "charge-payment", "persist-order"} {
		child, err := h.findSpan(name)
		if err != nil {
			return err
		}
		if child.Parent.SpanID() != root.SpanContext.SpanID() {
			return fmt.Errorf("%s is not a child of create-order", name)
		}
		if child.StartTime.Before(root.StartTime) || root.EndTime.Before(child.EndTime) {
			return fmt.Errorf("%s interval escapes its parent", name)
		}
	}
	return nil
}

func checkSlowEndpoint() error {
	const delay = 5 * time.Millisecond
	const samples = 3
	h, err := newHarness(delay)
	if err != nil {
		return err
	}

	for range samples {
		var body struct {
			Delay float64 `json:"delay"`
		}
		if err := h.getJSON("/api/slow", http.StatusOK, &body); err != nil {
			return err
		}
		if body.Delay != delay.Seconds() {
			return fmt.Errorf("expected delay %g, got %g", delay.Seconds(), body.Delay)
		}
	}

	var seen int
	for _, span := range h.spans.GetSpans() {
		if span.Name != "slow-endpoint" {
			continue
		}
		seen++
		if span.EndTime.Sub(span.StartTime) < delay {
			return fmt.Errorf("span duration %s is shorter than the %s delay", span.EndTime.Sub(span.StartTime), delay)
		}
	}
	if seen != samples {
		return fmt.Errorf("expected %d slow-endpoint spans, got %d", samples, seen)
	}
	return nil
}

func checkErrorTelemetry() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := h.getJSON("/api/error", http.StatusInternalServerError, &body); err != nil {
		return err
	}
	if body.Error != "This is a simulated error for testing" {
		return fmt.Errorf("unexpected error body: %q", body.Error)
	}

	span, err := h.findSpan("error-endpoint")
	if err != nil {
		return err
	}
	if span.Status.Code != codes.Error {
		return fmt.Errorf("error span status is %v, expected error", span.Status.Code)
	}

	var errorLogs []sdklog.Record
	for _, rec := range h.logs.get() {
		if rec.Severity() == otellog.SeverityError {
			errorLogs = append(errorLogs, rec)
		}
	}
	if len(errorLogs) != 1 {
		return fmt.Errorf("expected exactly one error-severity log record, got %d", len(errorLogs))
	}
	if errorLogs[0].TraceID() != span.SpanContext.TraceID() || errorLogs[0].SpanID() != span.SpanContext.SpanID() {
		return fmt.Errorf("error log record does not carry the error span's ids")
	}
	return nil
}

func checkHealthUntraced() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := h.getJSON("/health", http.StatusOK, &body); err != nil {
		return err
	}
	if body.Status != "healthy" {
		return fmt.Errorf("unexpected health status %q", body.Status)
	}
	if n := len(h.spans.GetSpans()); n != 0 {
		return fmt.Errorf("health check produced %d spans, expected none", n)
	}
	return nil
}

func checkExposition() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	if rr := h.get("/"); rr.Code != http.StatusOK {
		return fmt.Errorf("GET /: status %d", rr.Code)
	}
	rr := h.get("/metrics")
	if rr.Code != http.StatusOK {
		return fmt.Errorf("GET /metrics: status %d", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE http_requests_total counter",
		`http_requests_total{method="GET",route="/",status="200"} 1`,
		"# TYPE http_request_duration_seconds histogram",
	} {
		if !strings.Contains(body, want) {
			return fmt.Errorf("exposition is missing %q", want)
		}
	}
	return nil
}

func checkCounterAccuracy() error {
	h, err := newHarness(0)
	if err != nil {
		return err
	}

	const n = 3
	for range n {
		if rr := h.get("/"); rr.Code != http.StatusOK {
			return fmt.Errorf("GET /: status %d", rr.Code)
		}
	}

	body := h.get("/metrics").Body.String()
	want := fmt.Sprintf(`http_requests_total{method="GET",route="/",status="200"} %d`, n)
	if !strings.Contains(body, want) {
		return fmt.Errorf("expected counter line %q", want)
	}
	return nil
}
