package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ctmprelay/ctmp-relay/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_broadcast", snap.FramesBroadcast,
					"bytes_broadcast", snap.BytesBroadcast,
					"checksum_drops", snap.ChecksumDrops,
					"destinations_added", snap.DestAdded,
					"destinations_evicted", snap.DestEvicted,
					"destinations_active", snap.DestActive,
					"fanout", snap.Fanout,
					"source_admitted", snap.SourceAdmitted,
					"source_rejected", snap.SourceRejected,
					"malformed", snap.Malformed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
