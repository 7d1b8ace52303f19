// Traffic generation against a running demo service so its telemetry
// pipeline has something to show. Requests are paced by a ticker and issued
// on their own goroutines, so one slow endpoint never stalls the schedule.
package load

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRequestTimeout = 30 * time.Second
	probeTimeout          = 3 * time.Second
)

// DefaultPaths is the traffic mix used when no paths are given: every
// endpoint of the demo surface except the slow one, which is opt-in
// because it holds connections for seconds at a time.
func DefaultPaths() []string {
	return []string{
		"/",
		"/api/users",
		"/api/users/1",
		"/api/users/2",
		"/api/users/99",
		"/api/orders",
		"/api/error",
	}
}

// Options configures a load run.
type Options struct {
	Target   string        // base URL of the service, e.g. http://localhost:5000
	Rate     Rate          // request pacing
	Duration time.Duration // how long to keep sending
	Paths    []string      // request paths, cycled round-robin; nil uses DefaultPaths
	Timeout  time.Duration // per-request timeout, 0 uses the default
	Client   *http.Client  // overrides the HTTP client, mainly for tests
}

func (o Options) validate() error {
	if o.Target == "" {
		return fmt.Errorf("target cannot be empty")
	}
	u, err := url.Parse(o.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", o.Target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target must be an http or https URL, got %q", o.Target)
	}
	if o.Rate.IsZero() {
		return fmt.Errorf("rate cannot be empty")
	}
	if o.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", o.Duration)
	}
	for _, p := range o.Paths {
		if len(p) == 0 || p[0] != '/' {
			return fmt.Errorf("path %q must start with '/'", p)
		}
	}
	return nil
}

// Stats summarizes a completed load run.
type Stats struct {
	Requests   int64         // requests that received a response
	Failures   int64         // transport-level failures
	Statuses   map[int]int64 // responses by status code
	Elapsed    time.Duration
	AvgLatency time.Duration
	MaxLatency time.Duration
}

// Sent returns the total number of requests issued.
func (s Stats) Sent() int64 {
	return s.Requests + s.Failures
}

// ErrorRate returns the fraction of issued requests that failed at the
// transport level or returned a 5xx status.
func (s Stats) ErrorRate() float64 {
	sent := s.Sent()
	if sent == 0 {
		return 0
	}
	bad := s.Failures
	for code, n := range s.Statuses {
		if code >= http.StatusInternalServerError {
			bad += n
		}
	}
	return float64(bad) / float64(sent)
}

// StatusCodes returns the observed status codes in ascending order.
func (s Stats) StatusCodes() []int {
	codes := make([]int, 0, len(s.Statuses))
	for code := range s.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// liveStats accumulates results while request goroutines are in flight.
type liveStats struct {
	requests atomic.Int64
	failures atomic.Int64

	mu         sync.Mutex
	statuses   map[int]int64
	latencySum time.Duration
	latencyMax time.Duration
}

func (ls *liveStats) recordResponse(status int, latency time.Duration) {
	ls.requests.Add(1)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.statuses[status]++
	ls.latencySum += latency
	if latency > ls.latencyMax {
		ls.latencyMax = latency
	}
}

// Probe verifies the target is accepting TCP connections before a run
// starts, so a typo'd address fails fast with a useful message instead of
// producing a report full of connection errors.
func Probe(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", target, err)
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(host, port)
	}

	conn, err := net.DialTimeout("tcp", host, probeTimeout)
	if err != nil {
		return fmt.Errorf("cannot reach service at %s\n\n"+
			"Start it first:\n"+
			"  otelsample serve\n\n"+
			"Original error: %w", host, err)
	}
	return conn.Close()
}

// Run sends paced requests at opts.Target until the duration elapses or ctx
// is canceled, whichever comes first, and returns the accumulated stats.
func Run(ctx context.Context, opts Options) (Stats, error) {
	if err := opts.validate(); err != nil {
		return Stats{}, err
	}

	paths := opts.Paths
	if paths == nil {
		paths = DefaultPaths()
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	ls := &liveStats{statuses: make(map[int]int64)}
	base := opts.Target

	ticker := time.NewTicker(opts.Rate.Interval())
	defer ticker.Stop()

	start := time.Now()
	var wg sync.WaitGroup
	next := 0

	// The window context paces the loop; requests carry the caller's context
	// so work in flight when the window closes still completes.
loop:
	for {
		path := paths[next%len(paths)]
		next++

		wg.Add(1)
		go func() {
			defer wg.Done()
			sendRequest(ctx, client, base+path, ls)
		}()

		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
		}
	}
	wg.Wait()

	return ls.snapshot(time.Since(start)), nil
}

func sendRequest(ctx context.Context, client *http.Client, url string, ls *liveStats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		ls.failures.Add(1)
		return
	}

	begin := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		ls.failures.Add(1)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	ls.recordResponse(resp.StatusCode, time.Since(begin))
}

func (ls *liveStats) snapshot(elapsed time.Duration) Stats {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	stats := Stats{
		Requests:   ls.requests.Load(),
		Failures:   ls.failures.Load(),
		Statuses:   make(map[int]int64, len(ls.statuses)),
		Elapsed:    elapsed,
		MaxLatency: ls.latencyMax,
	}
	for code, n := range ls.statuses {
		stats.Statuses[code] = n
	}
	if stats.Requests > 0 {
		stats.AvgLatency = ls.latencySum / time.Duration(stats.Requests)
	}
	return stats
}
