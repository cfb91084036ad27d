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
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/browser"
	"github.com/aluiziolira/go-scrape-catalogue/catalogue"
	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/pipeline"
	"github.com/aluiziolira/go-scrape-catalogue/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type flags struct {
	configPath  string
	verbose     bool
	headless    bool
	format      string
	output      string
	metricsAddr string
	chromePath  string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.json", "Path to the JSON config file")
	flag.BoolVar(&f.verbose, "v", false, "Enable verbose logging")
	flag.BoolVar(&f.headless, "headless", true, "Run the browser without a window")
	flag.StringVar(&f.format, "format", "", "Output format: csv, json, or dual (overrides SCRAPER_OUTPUT_FORMAT)")
	flag.StringVar(&f.output, "output", "", "Output file path (overrides info_file_path)")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&f.chromePath, "chrome", "", "Path to the Chrome executable")
	flag.Parse()

	if err := run(f); err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(f flags) error {
	logger, level := newLogger(f.verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, f)
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("category", cfg.Category),
		slog.String("store", cfg.TargetAddress()),
		slog.String("output", cfg.OutputFile),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current step")
	}()

	session, err := browser.New(&browser.Options{
		Headless:       cfg.Headless,
		Timeout:        cfg.PageTimeout,
		NavigationRate: cfg.NavigationRate,
		UserAgent:      cfg.UserAgent,
		ExtraHeaders:   browserHeaders(cfg),
		ExecPath:       f.chromePath,
	})
	if err != nil {
		return fmt.Errorf("initialising browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	reader := catalogue.NewBrowserReader(session, cfg.CatalogueURL())
	s, err := scraper.NewScraper(cfg, reader)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(writer)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if closeErr := p.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("pipeline shutdown failed: %w", closeErr)
	}
	if err != nil {
		return err
	}
	if err := validateOutput(writer, result); err != nil {
		return err
	}

	printSummary(os.Stdout, result, cfg.OutputFile, p.GetMetrics())
	return nil
}

// validateOutput checks the output only when the run wrote records; a run
// that matched nothing legitimately leaves an empty file.
func validateOutput(writer pipeline.OutputWriter, result *models.ScraperResult) error {
	if result == nil || result.RecordCount == 0 {
		return nil
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}
	return nil
}

func applyFlags(cfg *config.Config, f flags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "headless":
			cfg.Headless = f.headless
		case "v":
			cfg.Verbose = f.verbose
		case "format":
			cfg.OutputFormat = strings.ToLower(f.format)
		case "output":
			cfg.OutputFile = f.output
		case "metrics-addr":
			cfg.MetricsAddr = f.metricsAddr
		}
	})
}

func browserHeaders(cfg *config.Config) map[string]string {
	headers := make(map[string]string, 2)
	if cfg.Accept != "" {
		headers["Accept"] = cfg.Accept
	}
	if cfg.Referer != "" {
		headers["Referer"] = cfg.Referer
	}
	return headers
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename, pipeline.HeaderNeeded(filename))
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename, pipeline.HeaderNeeded(filename))
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(w io.Writer, result *models.ScraperResult, outputFile string, metrics map[string]interface{}) {
	duration := result.EndTime.Sub(result.StartTime)
	recordsPerSec := 0.0
	if duration.Seconds() > 0 {
		recordsPerSec = float64(result.RecordCount) / duration.Seconds()
	}

	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")
	fmt.Fprintf(w, "  Categories:    %d\n", result.CategoryCount)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Products:      %d\n", result.ProductCount)
	fmt.Fprintf(w, "  Records:       %d (%d without availability)\n", result.RecordCount, result.PartialCount)
	fmt.Fprintf(w, "  API requests:  %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	if len(result.FailedProducts) > 0 {
		fmt.Fprintf(w, "  Failed items:  %d\n", len(result.FailedProducts))
	}
	if len(result.FailedCategories) > 0 {
		fmt.Fprintf(w, "  Failed categories: %v\n", result.FailedCategories)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	fmt.Fprintf(w, "  Records/sec:   %.2f\n", recordsPerSec)
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
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
