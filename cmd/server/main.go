package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"primetime/internal/compute"
	"primetime/internal/config"
	"primetime/internal/logger"
	"primetime/internal/metrics"
	"primetime/internal/network"
	"primetime/internal/oracle"
	"primetime/internal/storage"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Parse(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 0. Logging Setup
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}
	logger.Setup(out)

	switch {
	case cfg.Quiet:
		logger.SetLevel(logger.LevelError)
	case cfg.Debug:
		logger.SetLevel(logger.LevelDebug)
	default:
		logger.SetLevel(logger.LevelInfo)
	}

	logger.Info("----------------------------------------")
	logger.Info("Prime Time Server Initializing...")

	// 1. Prime index
	started := time.Now()
	idx, cached, err := storage.LoadOrBuildIndex(cfg.IndexCachePath, cfg.SieveBound)
	if idx == nil {
		logger.Fatal("Failed to build prime index: %v", err)
	}
	if err != nil {
		logger.Error("Failed to write index snapshot: %v", err)
	}
	source := "sieved"
	if cached {
		source = "loaded from " + cfg.IndexCachePath
	}
	logger.Info("Prime index ready: %d primes below %d (%s in %v)", idx.Count(), idx.Bound(), source, time.Since(started).Round(time.Millisecond))

	// 2. Compute pool
	m := metrics.New()
	pool := compute.NewPool(oracle.New(idx, m), cfg.Workers, cfg.QueueDepth)
	m.RegisterQueueDepth(pool.QueueDepth)
	pool.Start()
	defer pool.Close()

	// 3. Server
	server := network.NewServer(cfg, pool, m)
	if err := server.Listen(); err != nil {
		logger.Fatal("Server error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	go func() {
		if err := server.Serve(); err != nil {
			logger.Fatal("Server error: %v", err)
		}
	}()

	logger.Info("Server started on %s with %d worker(s). Press Ctrl+C to stop.", server.ListenAddr(), pool.Workers())
	<-ctx.Done()
	logger.Info("Shutting down...")
	server.Shutdown()
}
