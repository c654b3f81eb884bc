// Blocking wait for any signal of the full set.
//
// os/signal is the Go runtime's sigwait: registering a signal installs the
// runtime's handler (always with SA_RESTART) so the signal is no longer at its
// default disposition, and delivered signals are queued to a channel that
// Next blocks on.

//go:build !windows

package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// waitQueueLen bounds how many delivered signals may queue before Next
// catches up. The runtime coalesces repeats of one signal regardless.
const waitQueueLen = 32

// Wait acquires signals through a blocking wait on the full signal set.
type Wait struct {
	log  *slog.Logger
	ch   chan os.Signal
	set  []syscall.Signal
	once sync.Once
}

// NewWait installs handlers for SIGTERM and SIGINT, then registers every
// other catchable signal. A handler failure is an [InstallError]; failing
// to build the set is an [ErrFillSet].
func NewWait(log *slog.Logger) (*Wait, error) {
	if log == nil {
		log = slog.Default()
	}
	w := &Wait{log: log, ch: make(chan os.Signal, waitQueueLen)}

	for _, sig := range []syscall.Signal{unix.SIGTERM, unix.SIGINT} {
		if err := w.install(sig); err != nil {
			w.Close()
			return nil, err
		}
	}

	set, err := FullSet()
	if err != nil {
		w.Close()
		return nil, err
	}
	w.set = set
	signal.Notify(w.ch, osSignals(set)...)
	w.log.Debug("waiting on full signal set", "count", len(set))
	return w, nil
}

// install registers the runtime handler for one signal.
func (w *Wait) install(sig syscall.Signal) error {
	name := unix.SignalName(sig)
	if name == "" {
		return &InstallError{Signal: sig, Name: Name(sig), Err: fmt.Errorf("signal %d not defined", int(sig))}
	}
	signal.Notify(w.ch, sig)
	w.log.Debug("installed signal handler", "signal", name)
	return nil
}

// Set returns the signals being waited on.
func (w *Wait) Set() []syscall.Signal { return w.set }

// Next blocks until a signal of the set is delivered.
func (w *Wait) Next(ctx context.Context) (syscall.Signal, error) {
	select {
	case s, ok := <-w.ch:
		if !ok {
			return 0, ErrWaitFailed
		}
		sig, ok := s.(syscall.Signal)
		if !ok {
			return 0, fmt.Errorf("%w: unexpected signal type %T", ErrWaitFailed, s)
		}
		if sig == unix.SIGINT || sig == unix.SIGTERM {
			w.log.Debug(fmt.Sprintf("Handled signal [%d].", int(sig)))
		}
		return sig, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close stops delivery. A Next blocked on the wait then fails with
// [ErrWaitFailed]. It is safe to call more than once.
func (w *Wait) Close() error {
	w.once.Do(func() {
		signal.Stop(w.ch)
		close(w.ch)
	})
	return nil
}
