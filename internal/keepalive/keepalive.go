// Package keepalive classifies the dead-peer and read-deadline errors seen by
// internal/connfsm's read loop (spec §4.9); the idle-probe message itself is
// built by internal/wire. It deliberately
// exposes no background goroutine of its own: the scheduler described by the
// spec runs inline in the connection's own read loop via a read deadline,
// keeping every connection single-threaded from its own perspective (§5).
package keepalive

import (
	"errors"
	"net"
	"syscall"
)

// IsDeadPeer reports whether err indicates the peer is gone rather than
// merely slow: a broken pipe, a reset, an aborted connection, or a closed
// connection (spec §4.9).
func IsDeadPeer(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return false
}

// IsTimeout reports whether err is the read-deadline expiry connfsm uses to
// wake up and probe an otherwise idle connection, as opposed to a real I/O
// failure.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
