package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"

	"github.com/ctmprelay/ctmp-relay/internal/mdns"
)

// startMDNSAdvertising registers both the source and destination endpoints
// under their own service types; the caller invokes it once the server is
// ready. Registration failures are logged, not returned. It is a no-op when
// mDNS is disabled.
func startMDNSAdvertising(ctx context.Context, cfg *appConfig, l *slog.Logger, srcAddr, destAddr string) {
	if !cfg.mdnsEnable {
		return
	}
	srcPort := portOf(srcAddr)
	destPort := portOf(destAddr)

	meta := []string{"version=" + version, "commit=" + commit}

	if srcAdv, err := mdns.Register(ctx, mdns.InstanceName(cfg.mdnsName, "source"), mdns.SourceServiceType, srcPort, meta); err != nil {
		l.Warn("mdns_start_failed", "service", mdns.SourceServiceType, "error", err)
	} else {
		l.Info("mdns_started", "service", mdns.SourceServiceType, "port", srcPort)
		go func() { <-ctx.Done(); srcAdv.Close() }()
	}

	if destAdv, err := mdns.Register(ctx, mdns.InstanceName(cfg.mdnsName, "dest"), mdns.DestServiceType, destPort, meta); err != nil {
		l.Warn("mdns_start_failed", "service", mdns.DestServiceType, "error", err)
	} else {
		l.Info("mdns_started", "service", mdns.DestServiceType, "port", destPort)
		go func() { <-ctx.Done(); destAdv.Close() }()
	}
}

func portOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}
