// Package source provides the two signal acquisition mechanisms used by the
// demos. Both satisfy the consumer's Source interface:
//
//   - [FD] reads signalfd(2) records from a descriptor (Linux only).
//   - [Wait] blocks until any signal of the full set is delivered.
//
// Errors from either mechanism belong to a small taxonomy of sentinel values
// so callers can print a single diagnostic line via [Diagnostic].
package source

import (
	"errors"
	"fmt"
	"syscall"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

// Setup failures.
var (
	// ErrBlock is returned when the signals cannot be blocked.
	ErrBlock = errors.New("block signals")
	// ErrSignalfd is returned when the signal descriptor cannot be created.
	ErrSignalfd = errors.New("create signalfd")
	// ErrUnsupported is returned by [NewFD] on platforms without signalfd.
	ErrUnsupported = errors.New("signalfd not supported on this platform")
	// ErrInstallHandler is matched by every [InstallError].
	ErrInstallHandler = errors.New("install signal handler")
	// ErrFillSet is returned when the full signal set cannot be built.
	ErrFillSet = errors.New("build full signal set")
)

// Acquisition failures.
var (
	// ErrShortRead is returned when a signalfd read does not yield exactly one
	// signal-info record.
	ErrShortRead = errors.New("short signalfd read")
	// ErrRead is returned when polling or reading the signalfd fails.
	ErrRead = errors.New("read signalfd")
	// ErrWaitFailed is returned when the blocking wait cannot deliver a signal.
	ErrWaitFailed = errors.New("signal wait failed")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("signal source closed")
)

// InstallError reports a failed handler installation for one signal.
type InstallError struct {
	Signal syscall.Signal
	// Name is the symbolic name, e.g. "SIGTERM".
	Name string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install handler for %s: %v", e.Name, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInstallHandler) hold for any InstallError.
func (e *InstallError) Is(target error) bool { return target == ErrInstallHandler }

// ///////////////////////////////////////////////
// Diagnostics
// ///////////////////////////////////////////////

// Diagnostic returns the one-line console message for err.
func Diagnostic(err error) string {
	var ie *InstallError
	switch {
	case errors.As(err, &ie):
		return fmt.Sprintf("Error on sigaction %s.", ie.Name)
	case errors.Is(err, ErrBlock):
		return "Error on sigprocmask."
	case errors.Is(err, ErrSignalfd), errors.Is(err, ErrUnsupported):
		return "Error on signalfd."
	case errors.Is(err, ErrFillSet):
		return "Error on sigfillset."
	case errors.Is(err, ErrShortRead), errors.Is(err, ErrRead):
		return "Error on read."
	case errors.Is(err, ErrWaitFailed), errors.Is(err, ErrClosed):
		return "Error on sigwait."
	default:
		return fmt.Sprintf("Error: %v.", err)
	}
}
