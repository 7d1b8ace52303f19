// Instrumented demo web service
// Serves a handful of endpoints that emit traces, metrics, and logs over OTLP
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Sreejareddy7683/Otel/pkg/demo"
	"github.com/Sreejareddy7683/Otel/pkg/telemetry"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

const (
	telemetryShutdownTimeout = 5 * time.Second
	connectCheckTimeout      = 2 * time.Second
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "otelsample",
		Short:        "Instrumented demo web service",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(loadCmd())
	root.AddCommand(versionCmd())

	return root
}

func serveCmd() *cobra.Command {
	var (
		configPath  string
		addr        string
		endpoint    string
		protocol    string
		stdout      bool
		sampleRatio float64
		usersPath   string
		profileAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo service",
		Long: "Run the demo service.\n\n" +
			"Configuration merges defaults, an optional YAML config file, OTELSAMPLE_*\n" +
			"environment variables (OTEL_COLLECTOR_ENDPOINT is honored as an endpoint\n" +
			"alias), and flags, in that order of precedence. A .env file in the working\n" +
			"directory is loaded first when present.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Best-effort: a missing .env file is the normal case.
			_ = godotenv.Load()

			cfg, err := demo.LoadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.ListenAddr = addr
			}
			if flags.Changed("endpoint") {
				cfg.Endpoint = endpoint
			}
			if flags.Changed("protocol") {
				cfg.Protocol = protocol
			}
			if flags.Changed("stdout") {
				cfg.Stdout = stdout
			}
			if flags.Changed("sample-ratio") {
				cfg.SampleRatio = sampleRatio
			}
			if flags.Changed("users") {
				cfg.UsersFile = usersPath
			}
			if flags.Changed("profile") {
				cfg.ProfileAddr = profileAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&addr, "addr", ":5000", "listen address")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "OTLP collector endpoint (e.g. otel-collector:4317)")
	cmd.Flags().StringVar(&protocol, "protocol", telemetry.ProtocolGRPC, "OTLP protocol (grpc or http/protobuf)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "emit telemetry to stdout as JSON instead of OTLP")
	cmd.Flags().Float64Var(&sampleRatio, "sample-ratio", 1.0, "parent-based trace sampling ratio in [0, 1]")
	cmd.Flags().StringVar(&usersPath, "users", "", "YAML file replacing the built-in demo users")
	cmd.Flags().StringVar(&profileAddr, "profile", "", "Pyroscope server address for continuous profiling (e.g. http://pyroscope:4040)")

	return cmd
}

func runServe(cmd *cobra.Command, cfg demo.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Stdout {
		if err := checkCollector(cfg); err != nil {
			return err
		}
	}

	if cfg.ProfileAddr != "" {
		profiler, err := startProfiler(cfg)
		if err != nil {
			return fmt.Errorf("starting profiler: %w", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	providers, err := telemetry.Setup(ctx, cfg.Telemetry())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error shutting down telemetry: %v\n", err)
		}
	}()

	opts := demo.ServiceOptions{
		Name:           cfg.ServiceName,
		TracerProvider: providers.TracerProvider,
		MeterProvider:  providers.MeterProvider,
		Logger:         providers.Slog(cfg.ServiceName),
		BaseLatency:    cfg.BaseLatency,
	}
	if cfg.UsersFile != "" {
		users, err := demo.LoadUsers(cfg.UsersFile)
		if err != nil {
			return err
		}
		opts.Users = users
	}

	svc, err := demo.NewService(opts)
	if err != nil {
		return err
	}

	sink := "stdout"
	if !cfg.Stdout {
		sink = fmt.Sprintf("%s via %s", cfg.Telemetry().HostPort(), cfg.Protocol)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s listening on %s, exporting telemetry to %s\n",
		cfg.ServiceName, cfg.ListenAddr, sink)

	return demo.Serve(ctx, cfg.ListenAddr, svc.Routes(), opts.Logger)
}

// checkCollector dials the collector before starting so a bad endpoint fails
// fast with a usable message instead of silently dropping telemetry.
func checkCollector(cfg demo.Config) error {
	host := cfg.Telemetry().HostPort()

	conn, err := net.DialTimeout("tcp", host, connectCheckTimeout)
	if err != nil {
		return fmt.Errorf("cannot reach OTLP collector at %s\n\n"+
			"To emit telemetry as JSON to the terminal, use --stdout:\n"+
			"  otelsample serve --stdout\n\n"+
			"To send to a specific collector, use --endpoint:\n"+
			"  otelsample serve --endpoint collector.example.com:4317\n\n"+
			"The full local pipeline is available via deploy/docker-compose.yaml", host)
	}
	_ = conn.Close()
	return nil
}

func startProfiler(cfg demo.Config) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.ProfileAddr,
		Tags: map[string]string{
			"service_version": cfg.ServiceVersion,
			"environment":     cfg.Environment,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "otelsample %s (commit: %s, built: %s)\n", version, commit, buildTime)
		},
	}
}
