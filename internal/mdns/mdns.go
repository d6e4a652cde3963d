// Package mdns advertises the relay's source and destination endpoints via
// mDNS/Avahi, so CTMP sources and destinations on the local network can
// discover the relay without a hardcoded address.
package mdns

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// SourceServiceType and DestServiceType are the two distinct service
	// types advertised, one per accept loop (§4.6 of the relay design).
	SourceServiceType = "_ctmp-source._tcp"
	DestServiceType   = "_ctmp-dest._tcp"
)

// Advertisement is a single registered mDNS service, stoppable with Close.
type Advertisement struct {
	svc  *zeroconf.Server
	done chan struct{}
}

// Register advertises instance on serviceType at port, with meta as TXT
// records. It returns an Advertisement whose Close unregisters the service;
// the service is also torn down automatically when ctx is cancelled.
func Register(ctx context.Context, instance, serviceType string, port int, meta []string) (*Advertisement, error) {
	svc, err := zeroconf.Register(instance, serviceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns: register %s: %w", serviceType, err)
	}

	a := &Advertisement{svc: svc, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
		case <-a.done:
		}
		svc.Shutdown()
	}()
	return a, nil
}

// Close unregisters the advertisement and waits briefly for the shutdown
// goodbye packet to go out.
func (a *Advertisement) Close() {
	select {
	case <-a.done:
		return
	default:
		close(a.done)
	}
	a.svc.Shutdown()
	time.Sleep(50 * time.Millisecond)
}

// InstanceName returns name if non-empty, else a hostname-derived default.
func InstanceName(name, role string) string {
	if name != "" {
		return name
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("ctmp-relay-%s-%s", role, host)
}
