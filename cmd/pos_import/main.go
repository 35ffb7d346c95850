package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"posimport/internal/config"
	"posimport/internal/logging"
	"posimport/internal/metrics"
	"posimport/internal/metrics/datadog"
	"posimport/internal/metrics/prompush"

	// register all backends with the storage factory.
	_ "posimport/internal/storage/all"
)

const usageLine = "usage: pos_import [-config file.json] [-incoming dir] [-processed dir] [flags]"

// runner executes one import run against a resolved config and reports
// per-file outcomes on out.
type runner interface {
	Run(ctx context.Context, cfg config.Config, out io.Writer) error
}

// appDeps holds the seams runMain needs so tests can drive it without I/O.
type appDeps struct {
	readFile    func(string) ([]byte, error)
	unmarshal   func([]byte, any) error
	newRunner   func(log logrus.FieldLogger) runner
	initMetrics func(ctx context.Context, job string, m config.Metrics) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		readFile:    os.ReadFile,
		unmarshal:   unmarshalConfig,
		newRunner:   func(log logrus.FieldLogger) runner { return &importRunner{log: log} },
		initMetrics: initMetrics,
	}
}

func unmarshalConfig(data []byte, v any) error {
	c, ok := v.(*config.Config)
	if !ok {
		return fmt.Errorf("unmarshal target %T, want *config.Config", v)
	}
	parsed, err := config.Parse(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain is main without the process exit. Exit codes: 0 success, 1 any
// failure (config, metrics, or at least one file), 2 usage.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("pos_import", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath          = fs.String("config", "", "config JSON path (optional; flags override it)")
		envFile          = fs.String("env-file", ".env", "dotenv file loaded before the config is resolved; empty disables")
		incoming         = fs.String("incoming", "", "folder to scan for exports (default data/incoming)")
		processed        = fs.String("processed", "", "folder imported files are moved to (default data/processed)")
		includeProcessed = fs.Bool("include-processed", false, "also scan the processed folder (useful for re-imports)")
		noMove           = fs.Bool("no-move", false, "do not move imported files")
		allowCollisions  = fs.Bool("allow-id-collisions", false, "overwrite sales whose stored sale_date differs (not recommended)")
		dryRun           = fs.Bool("dry-run", false, "import into an in-memory sink and leave files in place")
		workers          = fs.Int("workers", 0, "files processed concurrently")
		storageKind      = fs.String("storage", "", "storage backend: postgres|sqlite|mssql|memory")
		dsn              = fs.String("dsn", "", "storage DSN (default built from the environment)")
		metricsBackend   = fs.String("metrics-backend", "", "metrics backend: none|datadog|pushgateway")
		pushGatewayURL   = fs.String("pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
		logLevel         = fs.String("log-level", "", "log level: debug|info|warn|error")
		logFormat        = fs.String("log-format", "", "log format: text|json")
		validateOnly     = fs.Bool("validate", false, "validate the configuration and exit")
		verbose          = fs.Bool("v", false, "enable debug logs")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, usageLine)
		return 2
	}

	if *envFile != "" {
		if err := config.LoadDotEnv(*envFile); err != nil {
			fmt.Fprintf(stderr, "load env: %v\n", err)
			return 1
		}
	}

	cfg := config.Default()
	if strings.TrimSpace(*cfgPath) != "" {
		raw, err := deps.readFile(*cfgPath)
		if err != nil {
			fmt.Fprintf(stderr, "read config: %v\n", err)
			return 1
		}
		if err := deps.unmarshal(raw, &cfg); err != nil {
			fmt.Fprintf(stderr, "parse config: %v\n", err)
			return 1
		}
	}
	if v := os.Getenv("METRICS_BACKEND"); v != "" {
		cfg.Metrics.Backend = v
	}

	// Only flags given on the command line override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "incoming":
			cfg.Source.Incoming = *incoming
		case "processed":
			cfg.Source.Processed = *processed
		case "include-processed":
			cfg.Source.IncludeProcessed = *includeProcessed
		case "no-move":
			cfg.Source.NoMove = *noMove
		case "allow-id-collisions":
			cfg.Import.AllowCollisions = *allowCollisions
		case "workers":
			cfg.Import.Workers = *workers
		case "storage":
			cfg.Storage.Kind = *storageKind
		case "dsn":
			cfg.Storage.DSN = *dsn
		case "metrics-backend":
			cfg.Metrics.Backend = *metricsBackend
		case "pushgateway-url":
			cfg.Metrics.PushgatewayURL = *pushGatewayURL
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})
	if *dryRun {
		cfg.Storage.Kind = "memory"
		cfg.Storage.DSN = ""
		cfg.Source.NoMove = true
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 1
	}
	if err := cfg.Expand(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	if *validateOnly {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}
	logger.WithFields(logrus.Fields{
		"job":      cfg.Job,
		"storage":  cfg.Storage.Kind,
		"incoming": cfg.Source.Incoming,
		"workers":  cfg.Import.Workers,
	}).Debug("starting")

	cleanup, err := deps.initMetrics(ctx, cfg.Job, cfg.Metrics)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	if err := deps.newRunner(logger).Run(ctx, cfg, stdout); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	return 0
}

// metricsBackend is what cleanup needs from a backend.
type metricsBackend interface {
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		b, err := datadog.NewBackend(ctx, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	newPushBackend = func(job, url string) (metricsBackend, error) {
		b, err := prompush.NewBackend(job, url)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = logrus.Printf
)

// initMetrics wires the selected backend into the metrics package. The
// returned cleanup is never nil and flushes the backend on shutdown.
func initMetrics(ctx context.Context, job string, m config.Metrics) (func(), error) {
	noop := func() {}

	switch name := strings.ToLower(strings.TrimSpace(m.Backend)); name {
	case "", "none":
		return noop, nil

	case "datadog", "dd":
		tags := append(datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")), m.Tags...)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: m.FlushEvery.Std(),
		})
		if err != nil {
			return noop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "pushgateway":
		url := m.PushgatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = "http://localhost:9091"
		}
		b, err := newPushBackend(job, url)
		if err != nil {
			return noop, fmt.Errorf("pushgateway: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: pushgateway push error: %v", err)
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (none|datadog|pushgateway)", m.Backend)
	}
}
