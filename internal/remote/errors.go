package remote

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnectivity covers unreachable endpoints, timeouts and TLS failures.
	ErrConnectivity = errors.New("remote endpoint unreachable")
	// ErrAuthentication is returned for rejected credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotConnected is returned when no live session backs an operation.
	ErrNotConnected = errors.New("not connected")
	// ErrSessionExpired is reported by a Conn whose server-side session is
	// gone. It wraps ErrNotConnected.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrNotConnected)
	// ErrRemote is the sentinel behind every *Error.
	ErrRemote = errors.New("remote error")
	// ErrPermissionDenied marks an *Error caused by missing privileges.
	ErrPermissionDenied = errors.New("permission denied")
)

// Error is a server-side rejection. Object and Path are set when the
// endpoint names the offending managed object or property path.
type Error struct {
	Op     string
	Object ObjectRef
	Path   string
	Fault  string
	Detail string
	// Denied is set for permission faults.
	Denied bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("remote error")
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if !e.Object.IsZero() {
		b.WriteString(" on ")
		b.WriteString(e.Object.String())
	}
	if e.Path != "" {
		b.WriteString(" path ")
		b.WriteString(e.Path)
	}
	if e.Fault != "" {
		b.WriteString(": ")
		b.WriteString(e.Fault)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	if target == ErrRemote {
		return true
	}
	return e.Denied && target == ErrPermissionDenied
}
