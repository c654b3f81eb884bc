// signalfd(2) acquisition for Linux.
//
// The signals are blocked and the descriptor created on a dedicated goroutine
// locked to its OS thread. The Go runtime runs on several threads, and a
// process-directed signal goes to any thread that does not block it, so the
// set is also registered with os/signal: whatever lands on another thread is
// re-sent to the locked thread with tgkill(2), where it stays pending until
// read from the descriptor. Poll and read both happen on the locked thread
// because signalfd only reports the reading thread's own pending signals
// alongside the process-wide ones.

//go:build linux

package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/fairyfar/gdb-sigwait/internal/logger"
	"golang.org/x/sys/unix"
)

// ///////////////////////////////////////////////
// Signal Sets
// ///////////////////////////////////////////////

// sigsetWordBits is the bit width of one unix.Sigset_t word (32 or 64
// depending on the architecture).
const sigsetWordBits = int(unsafe.Sizeof(unix.Sigset_t{}.Val[0])) * 8

// sigaddset adds sig to set.
func sigaddset(set *unix.Sigset_t, sig syscall.Signal) {
	n := int(sig) - 1
	word, bit := n/sigsetWordBits, uint(n%sigsetWordBits)
	set.Val[word] |= 1 << bit
}

// sigismember reports whether sig is in set.
func sigismember(set *unix.Sigset_t, sig syscall.Signal) bool {
	n := int(sig) - 1
	word, bit := n/sigsetWordBits, uint(n%sigsetWordBits)
	return set.Val[word]&(1<<bit) != 0
}

// ///////////////////////////////////////////////
// Record
// ///////////////////////////////////////////////

// Record is one struct signalfd_siginfo as read from the descriptor.
type Record unix.SignalfdSiginfo

// recordSize is the kernel's fixed signalfd_siginfo size.
const recordSize = int(unsafe.Sizeof(Record{}))

// Signal returns the record's signal number.
func (r Record) Signal() syscall.Signal { return syscall.Signal(r.Signo) }

// decodeRecord decodes one signalfd read. Anything but exactly one full
// record is an [ErrShortRead].
func decodeRecord(b []byte) (Record, error) {
	var rec Record
	if len(b) != recordSize {
		return rec, fmt.Errorf("%w: got %d bytes, want %d", ErrShortRead, len(b), recordSize)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&rec)), recordSize), b)
	return rec, nil
}

// ///////////////////////////////////////////////
// FD
// ///////////////////////////////////////////////

// fdResult carries one read outcome from the reader thread to Next.
type fdResult struct {
	rec Record
	err error
}

// FD acquires signals by reading a signalfd descriptor.
type FD struct {
	log *slog.Logger
	set unix.Sigset_t

	// sigfd and tid are written by the reader goroutine before it reports
	// readiness and are read-only afterwards.
	sigfd int
	tid   int
	// wakefd is an eventfd written by Close to interrupt the reader's poll.
	wakefd int

	results chan fdResult
	// forward receives signals the runtime caught on other threads.
	forward chan os.Signal
	closing chan struct{}
	// done is closed, under mu, when the reader goroutine is about to exit.
	// relay holds mu across tgkill so nothing is aimed at a dead thread.
	done chan struct{}
	mu   sync.Mutex
	once sync.Once
}

// NewFD blocks sigs and opens a signalfd over them. A failure to block is an
// [ErrBlock]; a failure to create the descriptor is an [ErrSignalfd].
func NewFD(sigs []syscall.Signal, log *slog.Logger) (*FD, error) {
	if len(sigs) == 0 {
		return nil, fmt.Errorf("%w: empty signal set", ErrBlock)
	}
	if log == nil {
		log = slog.Default()
	}
	f := &FD{
		log:     log,
		sigfd:   -1,
		results: make(chan fdResult),
		forward: make(chan os.Signal, len(sigs)),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, s := range sigs {
		if s <= 0 || int(s) >= maxSignal {
			return nil, fmt.Errorf("%w: invalid signal %d", ErrBlock, int(s))
		}
		sigaddset(&f.set, s)
	}

	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("%w: eventfd: %w", ErrSignalfd, err)
	}
	f.wakefd = wake

	ready := make(chan error, 1)
	go f.read(ready)
	if err := <-ready; err != nil {
		<-f.done
		unix.Close(wake)
		return nil, err
	}

	signal.Notify(f.forward, osSignals(sigs)...)
	go f.relay()

	names := make([]string, len(sigs))
	for i, s := range sigs {
		names[i] = Name(s)
	}
	f.log.Debug("signalfd ready", "fd", f.sigfd, "tid", f.tid, "signals", names)
	return f, nil
}

// Next returns the signal of the next record read from the descriptor.
func (f *FD) Next(ctx context.Context) (syscall.Signal, error) {
	select {
	case r := <-f.results:
		if r.err != nil {
			return 0, r.err
		}
		f.log.Debug("signalfd record",
			"signo", r.rec.Signo,
			"code", r.rec.Code,
			"pid", r.rec.Pid,
			"uid", r.rec.Uid,
		)
		return r.rec.Signal(), nil
	case <-f.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close stops forwarding, wakes the reader and releases the descriptors.
// It is safe to call more than once.
func (f *FD) Close() error {
	var err error
	f.once.Do(func() {
		signal.Stop(f.forward)
		close(f.forward)
		close(f.closing)

		var one [8]byte
		binary.NativeEndian.PutUint64(one[:], 1)
		if _, werr := unix.Write(f.wakefd, one[:]); werr != nil {
			err = fmt.Errorf("wake signalfd reader: %w", werr)
		}
		<-f.done
		if cerr := unix.Close(f.wakefd); cerr != nil && err == nil {
			err = fmt.Errorf("close eventfd: %w", cerr)
		}
	})
	return err
}

// read is the reader goroutine. It never unlocks its OS thread, so the
// thread exits together with the goroutine and the altered mask goes with it.
func (f *FD) read(ready chan<- error) {
	runtime.LockOSThread()
	defer f.finish()

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &f.set, nil); err != nil {
		ready <- fmt.Errorf("%w: %w", ErrBlock, err)
		return
	}
	fd, err := unix.Signalfd(-1, &f.set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		ready <- fmt.Errorf("%w: %w", ErrSignalfd, err)
		return
	}
	defer unix.Close(fd)
	f.sigfd = fd
	f.tid = unix.Gettid()
	ready <- nil

	buf := make([]byte, recordSize)
	for {
		wake, err := f.poll()
		if err != nil {
			f.send(fdResult{err: readError("poll", err)})
			return
		}
		if wake {
			return
		}
		n, err := unix.Read(fd, buf)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			f.send(fdResult{err: readError("read", err)})
			return
		}
		rec, err := decodeRecord(buf[:n])
		if !f.send(fdResult{rec: rec, err: err}) || err != nil {
			return
		}
	}
}

// poll waits until the descriptor is readable or Close writes the eventfd.
func (f *FD) poll() (wake bool, err error) {
	fds := []unix.PollFd{
		{Fd: int32(f.sigfd), Events: unix.POLLIN},
		{Fd: int32(f.wakefd), Events: unix.POLLIN},
	}
	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, err
		}
		if fds[1].Revents != 0 {
			return true, nil
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			return false, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, fmt.Errorf("signalfd revents %#x", fds[0].Revents)
		}
	}
}

// send hands r to Next, giving up when the source is closing.
func (f *FD) send(r fdResult) bool {
	select {
	case f.results <- r:
		return true
	case <-f.closing:
		return false
	}
}

// finish marks the reader gone. Once it returns, relay sends nothing more.
func (f *FD) finish() {
	f.mu.Lock()
	close(f.done)
	f.mu.Unlock()
}

// readError wraps a failed poll or read of the descriptor as an [ErrRead].
func readError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRead, op, err)
}

// relay re-targets signals caught on other threads at the reader thread.
func (f *FD) relay() {
	pid := unix.Getpid()
	for s := range f.forward {
		sig, ok := s.(syscall.Signal)
		if !ok || !sigismember(&f.set, sig) {
			continue
		}
		sent, err := f.retarget(pid, sig)
		if !sent {
			return
		}
		if err != nil {
			f.log.Warn("forward signal to reader thread", "signal", Name(sig), "error", err)
			continue
		}
		logger.Trace(f.log, "forwarded signal", "signal", Name(sig), "tid", f.tid)
	}
}

// retarget sends sig to the reader thread. It reports false once the reader
// has finished, since its tid may already belong to another thread.
func (f *FD) retarget(pid int, sig syscall.Signal) (sent bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false, nil
	default:
	}
	return true, unix.Tgkill(pid, f.tid, sig)
}
