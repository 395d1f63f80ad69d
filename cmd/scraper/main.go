package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/aluiziolira/go-scrape-catalog/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("category_workers", cfg.CategoryWorkers),
		slog.Int("product_workers", cfg.ProductWorkers),
		slog.String("format", cfg.OutputFormat),
	)

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		return fmt.Errorf("initialise fetcher: %w", err)
	}
	session, err := scraper.NewSession(cfg, fetcher, metrics)
	if err != nil {
		return fmt.Errorf("initialise session: %w", err)
	}

	writer, err := createWriter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.ProductWorkers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := session.Run(ctx, p)
	if err != nil {
		_ = p.Close()
		return err
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation: %w", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stdout, cfg, result, time.Since(startTime), p.GetMetrics())
	return nil
}

// loadConfig resolves configuration from, in increasing precedence:
// defaults, the YAML file named by -config or SCRAPER_CONFIG, SCRAPER_*
// environment variables, and command-line flags.
func loadConfig(args []string, output io.Writer) (*config.Config, error) {
	cfg := config.DefaultConfig()

	path, _ := config.EnvString("SCRAPER_CONFIG")
	if p := configFlag(args); p != "" {
		path = p
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.String("config", path, "YAML configuration file")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Catalog root URL")
	fs.StringVar(&cfg.APIBaseURL, "api-url", cfg.APIBaseURL, "Product API base URL")
	fs.IntVar(&cfg.MaxCategories, "categories", cfg.MaxCategories, "Maximum categories to crawl (0 = all)")
	fs.IntVar(&cfg.MaxPageIndex, "max-page-index", cfg.MaxPageIndex, "Highest page index probed per category")
	fs.IntVar(&cfg.CategoryWorkers, "category-workers", cfg.CategoryWorkers, "Concurrent category traversals")
	fs.IntVar(&cfg.ProductWorkers, "product-workers", cfg.ProductWorkers, "Concurrent product API fetches")
	fs.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Number of concurrent requests")
	fs.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Delay between requests")
	fs.DurationVar(&cfg.RandomDelay, "random-delay", cfg.RandomDelay, "Random jitter added to delay")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts per URL")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	fs.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path for json, csv and dual formats")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: mongo, json, csv, or dual")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "MongoDB connection string")
	fs.StringVar(&cfg.MongoDatabase, "mongo-db", cfg.MongoDatabase, "MongoDB database")
	fs.StringVar(&cfg.MongoCollection, "mongo-collection", cfg.MongoCollection, "MongoDB collection")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

// configFlag finds -config ahead of the full parse so file values can act as
// flag defaults.
func configFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func applyEnv(cfg *config.Config) error {
	strs := map[string]*string{
		"SCRAPER_BASE_URL":     &cfg.BaseURL,
		"SCRAPER_API_URL":      &cfg.APIBaseURL,
		"SCRAPER_OUTPUT":       &cfg.OutputFile,
		"SCRAPER_FORMAT":       &cfg.OutputFormat,
		"SCRAPER_MONGO_URI":    &cfg.MongoURI,
		"SCRAPER_MONGO_DB":     &cfg.MongoDatabase,
		"SCRAPER_METRICS_ADDR": &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if value, ok := config.EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"SCRAPER_PARALLEL":         &cfg.Parallelism,
		"SCRAPER_CATEGORIES":       &cfg.MaxCategories,
		"SCRAPER_CATEGORY_WORKERS": &cfg.CategoryWorkers,
		"SCRAPER_PRODUCT_WORKERS":  &cfg.ProductWorkers,
		"SCRAPER_MAX_RETRIES":      &cfg.MaxRetries,
	}
	for key, dst := range ints {
		value, ok, err := config.EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"SCRAPER_TIMEOUT": &cfg.Timeout,
		"SCRAPER_DELAY":   &cfg.Delay,
	}
	for key, dst := range durations {
		value, ok, err := config.EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

func createWriter(ctx context.Context, cfg *config.Config) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "mongo":
		return storage.NewMongoStore(ctx, cfg)
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "dual":
		csvFilename, jsonFilename := pipeline.DualFilenames(cfg.OutputFile)
		return pipeline.NewDualWriter(csvFilename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(out io.Writer, cfg *config.Config, result *models.CrawlResult, duration time.Duration, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Crawl complete")

	written := int64(0)
	if n, ok := metrics["written_products"].(int64); ok {
		written = n
	}
	perSec := 0.0
	if duration.Seconds() > 0 {
		perSec = float64(result.ProductsNormalized) / duration.Seconds()
	}

	fmt.Fprintf(out, "  Categories:    %d\n", result.Categories)
	fmt.Fprintf(out, "  Pages:         %d\n", result.Pages)
	fmt.Fprintf(out, "  Product links: %d\n", result.ProductLinks)
	fmt.Fprintf(out, "  Normalized:    %d\n", result.ProductsNormalized)
	fmt.Fprintf(out, "  Stored:        %d\n", written)
	if len(result.FailuresByReason) > 0 {
		reasons := make([]string, 0, len(result.FailuresByReason))
		for reason, n := range result.FailuresByReason {
			reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
		}
		sort.Strings(reasons)
		fmt.Fprintf(out, "  Skipped:       %s\n", strings.Join(reasons, " "))
	}
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Fprintf(out, "  Requests:      %d (%.2f%% ok)\n", result.RequestCount, successRate)
	fmt.Fprintf(out, "  Retries:       %d\n", result.RetryCount)
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(out, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(out, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Products/sec:  %.2f\n", perSec)
	if cfg.OutputFormat == "mongo" {
		fmt.Fprintf(out, "  Destination:   %s.%s\n", cfg.MongoDatabase, cfg.MongoCollection)
	} else {
		fmt.Fprintf(out, "  Output file:   %s\n", cfg.OutputFile)
	}
	fmt.Fprintln(out, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
