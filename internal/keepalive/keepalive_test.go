package keepalive

import (
	"errors"
	"net"
	"syscall"
	"testing"
)

func TestIsDeadPeer(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"broken pipe", &net.OpError{Err: syscall.EPIPE}, true},
		{"connection reset", &net.OpError{Err: syscall.ECONNRESET}, true},
		{"connection aborted", &net.OpError{Err: syscall.ECONNABORTED}, true},
		{"closed", net.ErrClosed, true},
		{"unrelated", errors.New("boom"), false},
	}
	for _, c := range cases {
		if got := IsDeadPeer(c.err); got != c.want {
			t.Errorf("IsDeadPeer(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(fakeTimeoutErr{}) {
		t.Fatal("expected fakeTimeoutErr to be recognised as a timeout")
	}
	if IsTimeout(errors.New("boom")) {
		t.Fatal("plain error should not be a timeout")
	}
	if IsTimeout(nil) {
		t.Fatal("nil error should not be a timeout")
	}
}
