//go:build !linux

package source

import (
	"context"
	"log/slog"
	"syscall"
)

// FD is unavailable outside Linux; [NewFD] always fails with [ErrUnsupported].
type FD struct{}

// NewFD reports [ErrUnsupported].
func NewFD(_ []syscall.Signal, _ *slog.Logger) (*FD, error) {
	return nil, ErrUnsupported
}

// Next reports [ErrClosed].
func (*FD) Next(context.Context) (syscall.Signal, error) { return 0, ErrClosed }

// Close is a no-op.
func (*FD) Close() error { return nil }
