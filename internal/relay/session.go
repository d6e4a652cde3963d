package relay

import (
	"errors"
	"io"
	"net"

	"github.com/ctmprelay/ctmp-relay/internal/admission"
	"github.com/ctmprelay/ctmp-relay/internal/ctmp"
	"github.com/ctmprelay/ctmp-relay/internal/logging"
	"github.com/ctmprelay/ctmp-relay/internal/metrics"
	"github.com/ctmprelay/ctmp-relay/internal/roster"
)

// runSourceSession drives the frame codec against one admitted source
// socket, broadcasting every well-formed frame to dest. It returns only
// once the session has ended (short read, protocol violation, or peer
// close); the admission slot is always cleared before returning, on every
// exit path.
func runSourceSession(conn net.Conn, dest *roster.Roster, gate *admission.Gate) {
	defer func() {
		gate.Clear()
		_ = conn.Close()
	}()

	var header [ctmp.HeaderSize]byte
	for {
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			logSessionEnd(ErrShortRead, err)
			return
		}

		hdr, err := ctmp.DecodeHeader(header[:])
		if err != nil {
			metrics.IncMalformed()
			logSessionEnd(classifyDecodeErr(err), err)
			return
		}

		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			logSessionEnd(ErrShortRead, err)
			return
		}

		if hdr.Sensitive && !ctmp.Verify(header, hdr, payload) {
			metrics.IncChecksumDrop()
			logging.L().Info("frame_checksum_drop", "reason", ErrChecksumMismatch, "length", hdr.Length)
			continue
		}

		frame := make([]byte, 0, ctmp.HeaderSize+len(payload))
		frame = append(frame, header[:]...)
		frame = append(frame, payload...)

		dest.Broadcast(frame)
		metrics.IncFramesBroadcast()
		metrics.AddBytesBroadcast(len(frame))
	}
}

// classifyDecodeErr maps a ctmp decode error onto the relay's own sentinel
// taxonomy so downstream logging/metrics don't need to know about the ctmp
// package's error values.
func classifyDecodeErr(err error) error {
	switch {
	case errors.Is(err, ctmp.ErrInvalidMagic):
		return ErrInvalidMagic
	case errors.Is(err, ctmp.ErrInvalidPadding):
		return ErrInvalidPadding
	case errors.Is(err, ctmp.ErrInvalidLength):
		return ErrInvalidLength
	default:
		return err
	}
}

func logSessionEnd(classified, cause error) {
	metrics.IncError(errLabel(classified))
	logging.L().Info("source_session_end", "reason", classified, "error", cause)
}

func errLabel(err error) string {
	switch {
	case errors.Is(err, ErrShortRead):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrInvalidMagic), errors.Is(err, ErrInvalidPadding), errors.Is(err, ErrInvalidLength):
		return metrics.ErrProtocol
	default:
		return metrics.ErrTCPRead
	}
}
