// Package errorsx implements the launcher's error taxonomy: every
// failure is tagged with a Kind so a caller can branch on it (the
// Supervisor's exit-code logic, or a test asserting a specific
// failure class) without parsing message text.
package errorsx

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a LaunchError into one of the taxonomy buckets.
type Kind int

const (
	// Configuration errors are invalid request fields, reported with
	// no cleanup needed.
	Configuration Kind = iota
	// Resource errors are allocation or fd-table exhaustion, reported
	// with partial cleanup.
	Resource
	// HostState errors are pre-existing cgroup directories,
	// unwritable mount sources, or missing kernel features.
	HostState
	// Handshake errors are a peer closing unexpectedly or a short
	// read/write on the IPC channel; fatal to the launch.
	Handshake
	// Syscall errors are any kernel-refused operation, fatal, carrying
	// the underlying errno.
	Syscall
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Resource:
		return "resource"
	case HostState:
		return "host-state"
	case Handshake:
		return "handshake"
	case Syscall:
		return "syscall"
	default:
		return "unknown"
	}
}

// LaunchError is the error type every component in the isolation
// pipeline returns. Op names the failed operation (e.g. "mkdir",
// "pivot_root") so logs and tests can key off it.
type LaunchError struct {
	Kind Kind
	Op   string
	err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.err)
}

func (e *LaunchError) Unwrap() error { return e.err }

// Cause returns the root cause, matching github.com/pkg/errors'
// convention so callers already using errors.Cause keep working.
func (e *LaunchError) Cause() error { return pkgerrors.Cause(e.err) }

// New wraps cause as a LaunchError of the given kind and operation.
// A nil cause returns nil, so call sites can write:
//
//	return errorsx.New(errorsx.HostState, "mkdir", err)
func New(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &LaunchError{Kind: kind, Op: op, err: pkgerrors.WithStack(cause)}
}

// Is reports whether err is a LaunchError of the given kind.
func Is(err error, kind Kind) bool {
	var le *LaunchError
	if !errors.As(err, &le) {
		return false
	}
	return le.Kind == kind
}
