// Package roster implements the destination roster: the thread-safe set of
// downstream sockets a CTMP relay fans frames out to, with per-destination
// eviction on write failure.
package roster

import (
	"io"
	"sync"

	"github.com/ctmprelay/ctmp-relay/internal/logging"
	"github.com/ctmprelay/ctmp-relay/internal/metrics"
)

// Sink is a destination socket. Only Write and Close are required, so tests
// can substitute anything satisfying the interface.
type Sink interface {
	io.Writer
	io.Closer
}

// Roster is an unordered multiset of Sinks. The zero value is an empty
// roster ready to use; New returns one. A single mutex guards both Add and Broadcast, so a
// Sink added mid-broadcast either observes the full broadcast or misses it
// entirely, never a prefix.
type Roster struct {
	mu    sync.Mutex
	sinks []Sink
}

// New creates an empty Roster.
func New() *Roster { return &Roster{} }

// Add appends sink to the roster unconditionally; no deduplication.
func (r *Roster) Add(sink Sink) {
	r.mu.Lock()
	prev := len(r.sinks)
	r.sinks = append(r.sinks, sink)
	cur := len(r.sinks)
	r.mu.Unlock()

	metrics.IncDestinationAdded()
	metrics.SetDestinationsActive(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("destinations_first_connected")
	}
}

// Broadcast writes b in full to every sink in the roster. Any sink whose
// write fails is evicted (and closed) before the next sink is attempted;
// sinks that succeed are retained. The lock is held for the full duration,
// so Broadcast is atomic with respect to concurrent Add.
func (r *Roster) Broadcast(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.sinks)
	metrics.SetBroadcastFanout(before)
	kept := r.sinks[:0]
	for _, sink := range r.sinks {
		if _, err := sink.Write(b); err != nil {
			_ = sink.Close()
			metrics.IncDestinationEvicted()
			metrics.IncError(metrics.ErrDestinationWrite)
			logging.L().Info("destination_evicted", "error", err)
			continue
		}
		kept = append(kept, sink)
	}
	r.sinks = kept
	metrics.SetDestinationsActive(len(r.sinks))
	if before > 0 && len(r.sinks) == 0 {
		logging.L().Info("destinations_last_disconnected")
	}
}

// Count returns the number of sinks currently in the roster.
func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// Close evicts and closes every sink in the roster. Used during shutdown.
func (r *Roster) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sink := range r.sinks {
		_ = sink.Close()
	}
	r.sinks = nil
	metrics.SetDestinationsActive(0)
}
