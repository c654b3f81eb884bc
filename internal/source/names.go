//go:build !windows

package source

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sys/unix"
)

// maxSignal is one past the highest signal number probed for a name. It
// matches Linux's _NSIG; other platforms simply have no names above theirs.
const maxSignal = 65

// Name returns the symbolic name of sig ("SIGTERM"), or "SIG<n>" when the
// platform defines none.
func Name(sig syscall.Signal) string {
	if n := unix.SignalName(sig); n != "" {
		return n
	}
	return "SIG" + strconv.Itoa(int(sig))
}

// Defined returns every signal the platform gives a name to, ascending.
func Defined() []syscall.Signal {
	var sigs []syscall.Signal
	for n := 1; n < maxSignal; n++ {
		if unix.SignalName(syscall.Signal(n)) != "" {
			sigs = append(sigs, syscall.Signal(n))
		}
	}
	return sigs
}

// FullSet returns every defined signal that can be waited on. SIGKILL and
// SIGSTOP cannot be caught; SIGURG is reserved by the Go scheduler for
// goroutine preemption and would otherwise flood the consumer.
func FullSet() ([]syscall.Signal, error) {
	var set []syscall.Signal
	for _, sig := range Defined() {
		switch sig {
		case unix.SIGKILL, unix.SIGSTOP, unix.SIGURG:
			continue
		}
		set = append(set, sig)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no catchable signals defined", ErrFillSet)
	}
	return set, nil
}

// ParseSet resolves signal names, numbers, or doublestar glob patterns into a
// sorted, de-duplicated signal list. Names are case-insensitive and the "SIG"
// prefix is optional: "int", "SIGTERM", "USR?" and "SIG*" are all accepted.
// A pattern that matches no defined signal is an error.
func ParseSet(patterns []string) ([]syscall.Signal, error) {
	if len(patterns) == 0 {
		return nil, errors.New("empty signal set")
	}
	defined := Defined()
	var set []syscall.Signal
	for _, raw := range patterns {
		matched, err := matchSignals(raw, defined)
		if err != nil {
			return nil, err
		}
		for _, sig := range matched {
			if !slices.Contains(set, sig) {
				set = append(set, sig)
			}
		}
	}
	slices.Sort(set)
	return set, nil
}

// matchSignals resolves a single ParseSet entry.
func matchSignals(raw string, defined []syscall.Signal) ([]syscall.Signal, error) {
	p := strings.ToUpper(strings.TrimSpace(raw))
	if p == "" {
		return nil, errors.New("empty signal name")
	}
	if n, err := strconv.Atoi(p); err == nil {
		sig := syscall.Signal(n)
		if !slices.Contains(defined, sig) {
			return nil, fmt.Errorf("undefined signal number %d", n)
		}
		return []syscall.Signal{sig}, nil
	}
	if !strings.HasPrefix(p, "SIG") {
		p = "SIG" + p
	}
	if !doublestar.ValidatePattern(p) {
		return nil, fmt.Errorf("invalid signal pattern %q", raw)
	}
	var out []syscall.Signal
	for _, sig := range defined {
		ok, err := doublestar.Match(p, unix.SignalName(sig))
		if err != nil {
			return nil, fmt.Errorf("match signal pattern %q: %w", raw, err)
		}
		if ok {
			out = append(out, sig)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unknown signal %q", raw)
	}
	return out, nil
}

// osSignals converts a signal list for os/signal.
func osSignals(sigs []syscall.Signal) []os.Signal {
	out := make([]os.Signal, len(sigs))
	for i, s := range sigs {
		out[i] = s
	}
	return out
}
