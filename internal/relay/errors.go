package relay

import "errors"

// Sentinel errors classifying source-side failures. ErrShortRead and the
// three decode errors end the session; ErrChecksumMismatch is recoverable
// at the frame level (the session drops the frame and keeps reading), and
// ErrSourceActive marks a second source rejected by the admission gate
// without affecting the running session. Destination write
// failures are classified at their own call site in internal/roster via
// metrics.ErrDestinationWrite, since that eviction happens inside the
// roster package and has no relay-level sentinel to avoid an import cycle.
var (
	ErrShortRead        = errors.New("relay: short read on source socket")
	ErrInvalidMagic     = errors.New("relay: invalid frame magic")
	ErrInvalidPadding   = errors.New("relay: invalid frame padding")
	ErrInvalidLength    = errors.New("relay: invalid frame length")
	ErrChecksumMismatch = errors.New("relay: sensitive frame checksum mismatch")
	ErrSourceActive     = errors.New("relay: a source session is already active")
)
