package remote

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ConnectErrorKind classifies why a connection attempt failed.
type ConnectErrorKind string

const (
	KindCredential  ConnectErrorKind = "credential"
	KindUnreachable ConnectErrorKind = "unreachable"
	KindTimeout     ConnectErrorKind = "timeout"
)

// ConnectError wraps a dial failure with its classification.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ErrShellClosed is returned by Run after the shell has been closed.
var ErrShellClosed = errors.New("remote shell closed")

// classifyConnectError maps a raw dial error onto a ConnectError.
func classifyConnectError(err error) *ConnectError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectError{Kind: KindTimeout, Err: err}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "no supported methods remain"):
		return &ConnectError{Kind: KindCredential, Err: err}
	case strings.Contains(msg, "i/o timeout"):
		return &ConnectError{Kind: KindTimeout, Err: err}
	default:
		return &ConnectError{Kind: KindUnreachable, Err: err}
	}
}
