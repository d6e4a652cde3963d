package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ctmprelay/ctmp-relay/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	FramesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_broadcast_total",
		Help: "Total CTMP frames accepted from the source and handed to the roster for broadcast.",
	})
	BytesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bytes_broadcast_total",
		Help: "Total frame bytes (header+payload) broadcast to destinations.",
	})
	ChecksumDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checksum_drops_total",
		Help: "Total sensitive frames dropped due to checksum mismatch.",
	})
	DestinationsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "destinations_added_total",
		Help: "Total destination connections accepted.",
	})
	DestinationsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "destinations_evicted_total",
		Help: "Total destinations evicted from the roster due to a failed write.",
	})
	DestinationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "destinations_active",
		Help: "Current number of destinations in the roster.",
	})
	BroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_fanout",
		Help: "Number of destinations targeted in the most recent broadcast.",
	})
	SourceAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "source_admitted_total",
		Help: "Total source connections admitted.",
	})
	SourceRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "source_rejected_total",
		Help: "Total source connections rejected because a source was already active.",
	})
	PoolQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_queue_depth",
		Help: "Approximate number of jobs waiting in the worker pool queue.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total source frames rejected as malformed (invalid magic, padding, or length).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTCPRead          = "tcp_read"
	ErrTCPWrite         = "tcp_write"
	ErrAccept           = "accept"
	ErrListen           = "listen"
	ErrDestinationWrite = "destination_write"
	ErrPoolClosed       = "pool_closed"
	ErrProtocol         = "protocol"
)

// StartHTTP serves Prometheus metrics at /metrics on a fresh mux, along with
// a /ready endpoint driven by the registered readiness function.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap in-process logging (avoids scraping
// Prometheus from within the same process for the metrics-log ticker).
var (
	localFramesBroadcast uint64
	localBytesBroadcast  uint64
	localChecksumDrops   uint64
	localDestAdded       uint64
	localDestEvicted     uint64
	localDestActive      uint64
	localFanout          uint64
	localSourceAdmitted  uint64
	localSourceRejected  uint64
	localErrors          uint64
	localMalformed       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesBroadcast uint64
	BytesBroadcast  uint64
	ChecksumDrops   uint64
	DestAdded       uint64
	DestEvicted     uint64
	DestActive      uint64
	Fanout          uint64
	SourceAdmitted  uint64
	SourceRejected  uint64
	Errors          uint64
	Malformed       uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesBroadcast: atomic.LoadUint64(&localFramesBroadcast),
		BytesBroadcast:  atomic.LoadUint64(&localBytesBroadcast),
		ChecksumDrops:   atomic.LoadUint64(&localChecksumDrops),
		DestAdded:       atomic.LoadUint64(&localDestAdded),
		DestEvicted:     atomic.LoadUint64(&localDestEvicted),
		DestActive:      atomic.LoadUint64(&localDestActive),
		Fanout:          atomic.LoadUint64(&localFanout),
		SourceAdmitted:  atomic.LoadUint64(&localSourceAdmitted),
		SourceRejected:  atomic.LoadUint64(&localSourceRejected),
		Errors:          atomic.LoadUint64(&localErrors),
		Malformed:       atomic.LoadUint64(&localMalformed),
	}
}

// Wrapper helpers keep call sites simple and keep the local mirror in sync
// with the Prometheus series.

func IncFramesBroadcast() {
	FramesBroadcast.Inc()
	atomic.AddUint64(&localFramesBroadcast, 1)
}

func AddBytesBroadcast(n int) {
	BytesBroadcast.Add(float64(n))
	atomic.AddUint64(&localBytesBroadcast, uint64(n))
}

func IncChecksumDrop() {
	ChecksumDrops.Inc()
	atomic.AddUint64(&localChecksumDrops, 1)
}

func IncDestinationAdded() {
	DestinationsAdded.Inc()
	atomic.AddUint64(&localDestAdded, 1)
}

func IncDestinationEvicted() {
	DestinationsEvicted.Inc()
	atomic.AddUint64(&localDestEvicted, 1)
}

func SetDestinationsActive(n int) {
	DestinationsActive.Set(float64(n))
	atomic.StoreUint64(&localDestActive, uint64(n))
}

func SetBroadcastFanout(n int) {
	BroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncSourceAdmitted() {
	SourceAdmitted.Inc()
	atomic.AddUint64(&localSourceAdmitted, 1)
}

func IncSourceRejected() {
	SourceRejected.Inc()
	atomic.AddUint64(&localSourceRejected, 1)
}

func SetPoolQueueDepth(n int) {
	PoolQueueDepth.Set(float64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers common error
// label series so the first error does not pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrTCPRead, ErrTCPWrite, ErrAccept, ErrListen, ErrDestinationWrite, ErrPoolClosed, ErrProtocol} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias for IsReady.
func Ready() bool { return IsReady() }
