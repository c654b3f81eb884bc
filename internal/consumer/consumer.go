// Package consumer implements the signal dispatch loop shared by both demo
// programs.
//
// A [Consumer] pulls one signal at a time from a [Source] and reacts to it:
//
//	SIGTERM                       -> notice, stop
//	SIGINT (break flag off)       -> notice, stop
//	SIGINT (break flag on)        -> call [Breakpoint], keep waiting
//	anything else                 -> "Unhandled signal [n]", keep waiting
//
// How a signal is acquired (signalfd read, blocking wait) is the Source's
// business; the policy above is written once here.
package consumer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
)

// ///////////////////////////////////////////////
// Source
// ///////////////////////////////////////////////

// Source acquires signals synchronously.
type Source interface {
	// Next blocks until the next signal is available and returns its number.
	// Any error is terminal for the consumer.
	Next(ctx context.Context) (syscall.Signal, error)
}

// ///////////////////////////////////////////////
// Consumer
// ///////////////////////////////////////////////

// Options configures a [Consumer].
type Options struct {
	// BreakOnInterrupt is the initial value of the debug-break flag. When set,
	// SIGINT calls [Breakpoint] instead of stopping the loop.
	BreakOnInterrupt bool
	// Out receives the console notices. Defaults to os.Stdout.
	Out io.Writer
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Consumer runs the dispatch loop over a single [Source].
type Consumer struct {
	src Source
	out io.Writer
	log *slog.Logger
	// breakOnInterrupt is the debug-break flag. Only the config watcher
	// writes it after construction.
	breakOnInterrupt atomic.Bool
}

// New creates a Consumer reading from src.
func New(src Source, opts Options) *Consumer {
	c := &Consumer{src: src, out: opts.Out, log: opts.Logger}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.breakOnInterrupt.Store(opts.BreakOnInterrupt)
	return c
}

// SetBreakOnInterrupt flips the debug-break flag.
func (c *Consumer) SetBreakOnInterrupt(v bool) {
	if c.breakOnInterrupt.Swap(v) != v {
		c.log.Info("debug-break flag changed", "break_on_sigint", v)
	}
}

// BreakOnInterrupt reports the current debug-break flag.
func (c *Consumer) BreakOnInterrupt() bool {
	return c.breakOnInterrupt.Load()
}

// Run loops until a terminating signal arrives or the source fails. It
// returns nil after SIGTERM, or SIGINT with the break flag off. A source
// error is returned wrapped and ends the loop; nothing is retried.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		sig, err := c.src.Next(ctx)
		if err != nil {
			return fmt.Errorf("acquire signal: %w", err)
		}
		c.log.Debug("signal acquired", "signo", int(sig), "name", sig.String())
		if c.dispatch(sig) {
			return nil
		}
	}
}

// dispatch handles one signal and reports whether the loop should stop.
func (c *Consumer) dispatch(sig syscall.Signal) (stop bool) {
	switch sig {
	case syscall.SIGTERM:
		fmt.Fprintln(c.out, "SIGTERM arrived. Exit now.")
		return true
	case syscall.SIGINT:
		if c.breakOnInterrupt.Load() {
			Breakpoint(c.out)
			return false
		}
		fmt.Fprintln(c.out, "SIGINT arrived. Exit now.")
		return true
	default:
		fmt.Fprintf(c.out, "Unhandled signal [%d]\n", int(sig))
		return false
	}
}

// ///////////////////////////////////////////////
// Debugger Hook
// ///////////////////////////////////////////////

// Breakpoint is called on SIGINT while the debug-break flag is set. It exists
// as a stable symbol to break on:
//
//	(gdb) break 'github.com/fairyfar/gdb-sigwait/internal/consumer.Breakpoint'
//	(dlv) break consumer.Breakpoint
//
//go:noinline
func Breakpoint(w io.Writer) {
	fmt.Fprintln(w, "A chance to break on SIGINT")
}
