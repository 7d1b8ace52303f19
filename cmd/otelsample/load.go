// Traffic generation subcommand: paced requests against a running instance
// so the telemetry backends have live data to show.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Sreejareddy7683/Otel/pkg/load"
)

func loadCmd() *cobra.Command {
	var (
		target   string
		rateStr  string
		duration time.Duration
		routes   []string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send paced traffic to a running instance",
		Long: "Send paced traffic to a running instance.\n\n" +
			"Requests cycle through the demo routes (or --routes) at the given rate\n" +
			"until the duration elapses or the command is interrupted. The slow\n" +
			"endpoint is excluded from the default mix; include it explicitly with\n" +
			"--routes if wanted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := load.ParseRate(rateStr)
			if err != nil {
				return err
			}
			if err := load.Probe(target); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !jsonOut {
				fmt.Fprintf(cmd.ErrOrStderr(), "sending %s to %s for %s\n", rate, target, duration)
			}

			stats, err := load.Run(ctx, load.Options{
				Target:   target,
				Rate:     rate,
				Duration: duration,
				Paths:    routes,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(newLoadReport(stats))
			}
			renderLoadReport(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "http://localhost:5000", "base URL of the running service")
	cmd.Flags().StringVar(&rateStr, "rate", "10/s", "request rate, e.g. 10/s, 300/m")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to keep sending")
	cmd.Flags().StringSliceVar(&routes, "routes", nil, "request paths to cycle through (default: the demo mix)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print machine-readable stats instead of a table")

	return cmd
}

// loadReport is the machine-readable summary printed by --json.
type loadReport struct {
	Requests     int64            `json:"requests"`
	Failures     int64            `json:"failures"`
	Statuses     map[string]int64 `json:"statuses"`
	ElapsedSec   float64          `json:"elapsed_seconds"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`
	MaxLatencyMs float64          `json:"max_latency_ms"`
	ErrorRate    float64          `json:"error_rate"`
}

func newLoadReport(stats load.Stats) loadReport {
	statuses := make(map[string]int64, len(stats.Statuses))
	for code, n := range stats.Statuses {
		statuses[strconv.Itoa(code)] = n
	}
	return loadReport{
		Requests:     stats.Requests,
		Failures:     stats.Failures,
		Statuses:     statuses,
		ElapsedSec:   stats.Elapsed.Seconds(),
		AvgLatencyMs: float64(stats.AvgLatency) / float64(time.Millisecond),
		MaxLatencyMs: float64(stats.MaxLatency) / float64(time.Millisecond),
		ErrorRate:    stats.ErrorRate(),
	}
}

func renderLoadReport(out io.Writer, stats load.Stats) {
	p := message.NewPrinter(language.English)

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"STATUS", "COUNT"})
	for _, code := range stats.StatusCodes() {
		label := fmt.Sprintf("%d %s", code, http.StatusText(code))
		tw.AppendRow(table.Row{label, p.Sprintf("%d", stats.Statuses[code])})
	}
	if stats.Failures > 0 {
		tw.AppendRow(table.Row{"transport failure", p.Sprintf("%d", stats.Failures)})
	}
	tw.AppendFooter(table.Row{"total sent", p.Sprintf("%d", stats.Sent())})
	tw.Render()

	perSecond := 0.0
	if stats.Elapsed > 0 {
		perSecond = float64(stats.Sent()) / stats.Elapsed.Seconds()
	}
	_, _ = p.Fprintf(out, "%d requests in %v (%.1f req/s), avg latency %v, max %v, %.1f%% errors\n",
		stats.Sent(), stats.Elapsed.Round(time.Millisecond), perSecond,
		stats.AvgLatency.Round(time.Microsecond), stats.MaxLatency.Round(time.Microsecond),
		stats.ErrorRate()*100)
}
