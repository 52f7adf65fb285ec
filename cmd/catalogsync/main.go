package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opendatacatalog/catalogsync/internal/config"
	"github.com/opendatacatalog/catalogsync/internal/httpx"
	"github.com/opendatacatalog/catalogsync/internal/model"
	"github.com/opendatacatalog/catalogsync/internal/observability"
	"github.com/opendatacatalog/catalogsync/internal/pipeline"
	"github.com/opendatacatalog/catalogsync/internal/region"
	"github.com/opendatacatalog/catalogsync/internal/repository"
	"github.com/opendatacatalog/catalogsync/internal/socrata"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	regionsFlag := flag.String("regions", "", "comma-separated region override, e.g. US,EU")
	pageSize := flag.Int("page-size", 0, "discovery page size override")
	limit := flag.Int("limit", 0, "per-run item limit override")
	dryRun := flag.Bool("dry-run", false, "run discovery without writing to the repository")
	batchSize := flag.Int("batch-size", 0, "commit batch size override")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *regionsFlag != "" {
		cfg.Pipeline.Regions = strings.Split(*regionsFlag, ",")
	}
	if *pageSize > 0 {
		cfg.Pipeline.PageSize = *pageSize
	}
	if *limit > 0 {
		cfg.Pipeline.Limit = *limit
	}
	if *batchSize > 0 {
		cfg.Pipeline.BatchSize = *batchSize
	}
	if *dryRun {
		cfg.Pipeline.DryRun = true
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	level := observability.ParseLevel(cfg.Logging.Level)
	appLogger := observability.NewZapLogger(sugar, level)

	registry := prometheus.NewRegistry()
	metrics := observability.NewPromMetrics(registry)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				sugar.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	var repo repository.Repository
	if cfg.Pipeline.DryRun {
		repo = repository.NewDryRunRepository()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgRepo, err := repository.NewPgRepository(ctx, cfg.Postgres.DSN)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect postgres: %v", err)
		}
		defer pgRepo.Close()
		repo = pgRepo
	}

	retrier := httpx.NewRetrier(&http.Client{Timeout: 30 * time.Second}, cfg.Pipeline.RetryConfig())
	fetch := httpx.NewFetch(retrier)
	discoverer := socrata.NewDiscoverer(fetch, region.DiscoveryBaseURL, cfg.Pipeline.PageSize)
	discoverer.AppToken = cfg.Socrata.AppToken

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		sugar.Info("received shutdown signal")
		cancel()
	}()

	result, err := pipeline.Run(ctx, pipeline.Config{
		Name:          cfg.Pipeline.Name,
		Regions:       cfg.Pipeline.RegionList(),
		PageSize:      cfg.Pipeline.PageSize,
		Limit:         cfg.Pipeline.Limit,
		DryRun:        cfg.Pipeline.DryRun,
		ResumeEnabled: cfg.Pipeline.ResumeEnabled,
		BatchSize:     cfg.Pipeline.BatchSize,
		RetryConfig:   cfg.Pipeline.RetryConfig(),
		Discoverer:    discoverer,
		Repository:    repo,
		Logger:        appLogger,
		Metrics:       metrics,
	})
	if err != nil {
		sugar.Errorf("pipeline run failed: %v", err)
		os.Exit(1)
	}

	sugar.Infow("pipeline run complete",
		"total_processed", result.TotalProcessed,
		"completed_regions", regionNames(result.CompletedRegions),
		"duration", result.FinishedAt.Sub(result.StartedAt).String(),
	)
	fmt.Printf("processed %d items across %d region(s)\n", result.TotalProcessed, len(result.CompletedRegions))
}

func regionNames(regions []model.Region) []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = string(r)
	}
	return out
}
