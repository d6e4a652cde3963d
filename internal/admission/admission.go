// Package admission implements the single-source admission gate: a
// mutex-guarded slot enforcing at most one live source session at a time.
package admission

import (
	"io"
	"sync"

	"github.com/ctmprelay/ctmp-relay/internal/logging"
	"github.com/ctmprelay/ctmp-relay/internal/metrics"
)

// Gate guards a single admission slot. The zero value is ready to use.
// Admission check-and-set is a single critical section relative to Clear,
// so a concurrent acceptor and an exiting session can never both believe
// they hold the slot.
type Gate struct {
	mu      sync.Mutex
	current io.Closer // non-nil while a source session is admitted
}

// TryAdmit attempts to occupy the slot with sock as the presence marker.
// It reports whether admission succeeded. On failure the caller retains
// ownership of sock (and must close it itself) — the gate never touches a
// socket it didn't admit.
func (g *Gate) TryAdmit(sock io.Closer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil {
		metrics.IncSourceRejected()
		return false
	}
	g.current = sock
	metrics.IncSourceAdmitted()
	logging.L().Info("source_admitted")
	return true
}

// Clear empties the slot. It is idempotent: calling it when the slot is
// already empty (or already cleared by a previous call from the same
// session) is a no-op. Sessions must call Clear exactly once on every exit
// path so a subsequent source can be admitted.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return
	}
	g.current = nil
	logging.L().Debug("admission_cleared")
}

// Occupied reports whether a source is currently admitted. Intended for
// diagnostics only; callers making an admission decision must use TryAdmit
// to avoid a check-then-act race.
func (g *Gate) Occupied() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}

// CloseCurrent closes the admitted socket, if any, without clearing the
// slot itself — the session blocked on it observes the close, runs its own
// defer, and calls Clear on its way out. Used on shutdown to unblock a
// worker parked in a read on the active source so the pool can drain.
func (g *Gate) CloseCurrent() {
	g.mu.Lock()
	cur := g.current
	g.mu.Unlock()
	if cur != nil {
		_ = cur.Close()
	}
}
