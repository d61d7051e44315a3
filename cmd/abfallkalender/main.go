package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/config"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/pipeline"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/scraper"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()

	attemptsDefault := defaultCfg.MaxAttempts
	if value, ok, err := config.EnvInt("ABFALL_MAX_ATTEMPTS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid ABFALL_MAX_ATTEMPTS: %v\n", err)
		os.Exit(1)
	} else if ok {
		attemptsDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("ABFALL_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("ABFALL_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	delayDefault := defaultCfg.Delay
	if value, ok, err := config.EnvDuration("ABFALL_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid ABFALL_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		delayDefault = value
	}

	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Schedule site base URL")
	maxAttempts := flag.Int("max-attempts", attemptsDefault, "Fetch attempts per street before giving up")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "HTTP request timeout")
	delay := flag.Duration("delay", delayDefault, "Delay between requests")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: json, csv, or dual")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	queryStreet := flag.String("street", "", "Query mode: street name to resolve")
	queryNumber := flag.String("number", "", "Query mode: house number to resolve")
	tablePath := flag.String("table", "", "Query mode: JSON snapshot to load (defaults to -output)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.BaseURL = *baseURL
	cfg.MaxAttempts = *maxAttempts
	cfg.Timeout = *timeout
	cfg.Delay = *delay
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if *queryStreet != "" || *queryNumber != "" {
		os.Exit(runQuery(cfg, *tablePath, *queryStreet, *queryNumber))
	}
	os.Exit(runScrape(cfg))
}

func runQuery(cfg *config.Config, tablePath, street, number string) int {
	if street == "" || number == "" {
		fmt.Fprintln(os.Stderr, "query mode needs both -street and -number")
		return 2
	}
	if tablePath == "" {
		tablePath = cfg.OutputFile
	}

	tbl, err := table.Load(tablePath)
	if err != nil {
		slog.Error("loading table", slog.Any("error", err))
		return 1
	}
	resolver, err := table.NewResolver(tbl, cfg.CacheSize)
	if err != nil {
		slog.Error("initialising resolver", slog.Any("error", err))
		return 1
	}

	data, err := resolver.Resolve(street, number)
	if err != nil {
		var unknownStreet *table.UnknownStreetError
		var unknownNumber *table.UnknownHouseNumberError
		switch {
		case errors.As(err, &unknownStreet), errors.As(err, &unknownNumber):
			fmt.Fprintln(os.Stderr, err)
		default:
			slog.Error("resolve failed", slog.Any("error", err))
		}
		return 1
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("encoding result", slog.Any("error", err))
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func runScrape(cfg *config.Config) int {
	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("max_attempts", cfg.MaxAttempts),
		slog.String("output", cfg.OutputFile),
	)

	fetcher, err := scraper.NewFetcher(cfg)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current street")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && fetcher.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(fetcher.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	listings, err := fetcher.StreetList(ctx)
	if err != nil {
		slog.Error("fetching street list", slog.Any("error", err))
		return 1
	}
	slog.Info("street list fetched", slog.Int("listings", len(listings)))

	orchestrator := pipeline.NewOrchestrator(cfg, fetcher, writer, fetcher.Metrics)
	result, err := orchestrator.Run(ctx, listings)
	if err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
		return 1
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return 1
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.OutputFile)
	return 0
}

func createWriter(format, filename string) (pipeline.SnapshotWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONSnapshotWriter(filename)
	case "csv":
		return pipeline.NewCSVExporter(filename)
	case "dual":
		csvFilename := strings.TrimSuffix(filename, ".json") + ".csv"
		return pipeline.NewDualWriter(filename, csvFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.ScrapeResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Listings:      %d\n", result.ListingCount)
	fmt.Printf("  Streets:       %d\n", result.StreetCount)
	fmt.Printf("  Failed:        %d\n", len(result.FailedStreets))
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
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
