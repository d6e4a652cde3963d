package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ctmprelay/ctmp-relay/internal/metrics"
	"github.com/ctmprelay/ctmp-relay/internal/relay"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("ctmp-relay %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	srv := relay.NewServer(relay.Config{
		SourceAddr: cfg.sourceAddr,
		DestAddr:   cfg.destAddr,
		Workers:    cfg.workers,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	go func() {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		startMDNSAdvertising(ctx, cfg, l, srv.SourceAddr(), srv.DestAddr())
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	case err := <-serveErr:
		if err != nil {
			l.Error("relay_serve_error", "error", err)
		}
		cancel()
		wg.Wait()
		return
	}

	if err := <-serveErr; err != nil {
		l.Error("relay_serve_error", "error", err)
	}
	wg.Wait()
}
