package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/fairyfar/gdb-sigwait/internal/config"
	"github.com/fairyfar/gdb-sigwait/internal/consumer"
	"github.com/fairyfar/gdb-sigwait/internal/source"
)

// ///////////////////////////////////////////////
// Fakes
// ///////////////////////////////////////////////

// fakeSource yields a fixed script of signals, then err (ErrClosed when nil).
type fakeSource struct {
	mu     sync.Mutex
	script []syscall.Signal
	err    error
	closed bool
}

func (s *fakeSource) Next(ctx context.Context) (syscall.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, source.ErrClosed
	}
	sig := s.script[0]
	s.script = s.script[1:]
	return sig, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func opener(src *fakeSource) Opener {
	return func(*config.Config, *slog.Logger) (Source, error) { return src, nil }
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

// runTest calls run and returns the exit code with captured stdout and stderr.
func runTest(t *testing.T, open Opener, vars map[string]string) (int, string, string) {
	t.Helper()
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil))) })
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), "test-demo", open, &stdout, &stderr, env(vars))
	return code, stdout.String(), stderr.String()
}

// ///////////////////////////////////////////////
// Run Tests
// ///////////////////////////////////////////////

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		script     []syscall.Signal
		err        error
		vars       map[string]string
		wantCode   int
		wantStdout string
	}{
		{
			name:       "SIGTERM exits",
			script:     []syscall.Signal{syscall.SIGTERM},
			wantCode:   ExitOK,
			wantStdout: "SIGTERM arrived. Exit now.\n",
		},
		{
			name:       "SIGINT exits with flag off",
			script:     []syscall.Signal{syscall.SIGINT},
			wantCode:   ExitOK,
			wantStdout: "SIGINT arrived. Exit now.\n",
		},
		{
			name:     "unhandled then SIGTERM",
			script:   []syscall.Signal{syscall.Signal(10), syscall.Signal(10), syscall.SIGTERM},
			wantCode: ExitOK,
			wantStdout: "Unhandled signal [10]\n" +
				"Unhandled signal [10]\n" +
				"SIGTERM arrived. Exit now.\n",
		},
		{
			name:     "break flag from environment",
			script:   []syscall.Signal{syscall.SIGINT, syscall.SIGINT, syscall.SIGTERM},
			vars:     map[string]string{config.EnvBreakOnSIGINT: "true"},
			wantCode: ExitOK,
			wantStdout: "A chance to break on SIGINT\n" +
				"A chance to break on SIGINT\n" +
				"SIGTERM arrived. Exit now.\n",
		},
		{
			name:       "short read fails",
			err:        fmt.Errorf("decode: %w", source.ErrShortRead),
			wantCode:   ExitFailure,
			wantStdout: "Error on read.\n",
		},
		{
			name:       "wait failure after unhandled signal",
			script:     []syscall.Signal{syscall.Signal(12)},
			err:        source.ErrWaitFailed,
			wantCode:   ExitFailure,
			wantStdout: "Unhandled signal [12]\nError on sigwait.\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{script: tt.script, err: tt.err}
			code, stdout, stderr := runTest(t, opener(src), tt.vars)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr: %s)", code, tt.wantCode, stderr)
			}
			if stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantStdout)
			}
			if !src.closed {
				t.Error("source was not closed")
			}
		})
	}
}

func TestRun_OpenFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"sigprocmask", fmt.Errorf("%w: operation not permitted", source.ErrBlock), "Error on sigprocmask.\n"},
		{"signalfd", source.ErrSignalfd, "Error on signalfd.\n"},
		{"sigaction", &source.InstallError{Signal: syscall.SIGTERM, Name: "SIGTERM", Err: errors.New("x")}, "Error on sigaction SIGTERM.\n"},
		{"sigfillset", source.ErrFillSet, "Error on sigfillset.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open := func(*config.Config, *slog.Logger) (Source, error) { return nil, tt.err }
			code, stdout, stderr := runTest(t, open, nil)
			if code != ExitFailure {
				t.Errorf("exit code = %d, want %d", code, ExitFailure)
			}
			if stdout != tt.want {
				t.Errorf("stdout = %q, want %q", stdout, tt.want)
			}
			if !strings.Contains(stderr, "FAIL  setup failed") {
				t.Errorf("expected FAIL log line, got %q", stderr)
			}
		})
	}
}

func TestRun_BadConfig(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad bool", map[string]string{config.EnvBreakOnSIGINT: "maybe"}},
		{"bad level", map[string]string{config.EnvLogLevel: "chatty"}},
		{"missing file", map[string]string{config.EnvPath: filepath.Join(os.TempDir(), "sigdemo-absent", "x.toml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened := false
			open := func(*config.Config, *slog.Logger) (Source, error) {
				opened = true
				return &fakeSource{}, nil
			}
			code, stdout, _ := runTest(t, open, tt.vars)
			if code != ExitFailure {
				t.Errorf("exit code = %d, want %d", code, ExitFailure)
			}
			if !strings.HasPrefix(stdout, "Error on config: ") || strings.Count(stdout, "\n") != 1 {
				t.Errorf("stdout = %q, want one config diagnostic line", stdout)
			}
			if opened {
				t.Error("source opened despite invalid configuration")
			}
		})
	}
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigdemo.toml")
	content := "[consumer]\nbreak_on_sigint = true\n[signals]\nblock = [\"INT\", \"TERM\", \"USR1\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotBlock []string
	src := &fakeSource{script: []syscall.Signal{syscall.SIGINT, syscall.SIGTERM}}
	open := func(cfg *config.Config, _ *slog.Logger) (Source, error) {
		gotBlock = cfg.Signals.Block
		return src, nil
	}
	code, stdout, _ := runTest(t, open, map[string]string{config.EnvPath: path})
	if code != ExitOK {
		t.Fatalf("exit code = %d, want %d", code, ExitOK)
	}
	if want := "A chance to break on SIGINT\nSIGTERM arrived. Exit now.\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if strings.Join(gotBlock, ",") != "INT,TERM,USR1" {
		t.Errorf("opener saw block %v", gotBlock)
	}
}

func TestRun_LogsStartup(t *testing.T) {
	src := &fakeSource{script: []syscall.Signal{syscall.SIGTERM}}
	_, _, stderr := runTest(t, opener(src), nil)
	for _, want := range []string{"test-demo[", "INFO  starting version=", "INFO  waiting for signals break_on_sigint=false"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
}

func TestRun_LogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "demo.log")
	cfgPath := filepath.Join(t.TempDir(), "sigdemo.toml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf("[log]\nfile = %q\n", logPath)), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{script: []syscall.Signal{syscall.SIGTERM}}
	code, _, stderr := runTest(t, opener(src), map[string]string{config.EnvPath: cfgPath})
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if stderr != "" {
		t.Errorf("stderr should be empty when logging to a file, got %q", stderr)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "waiting for signals") {
		t.Errorf("log file missing startup lines: %q", data)
	}
}

// ///////////////////////////////////////////////
// PID File Tests
// ///////////////////////////////////////////////

func TestRun_PIDFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "demo.pid")
	cfgPath := filepath.Join(dir, "sigdemo.toml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf("[process]\npid_file = %q\n", pidPath)), 0o644); err != nil {
		t.Fatal(err)
	}

	var pidDuringRun int
	open := func(*config.Config, *slog.Logger) (Source, error) {
		pid, _, err := readPID(pidPath)
		if err != nil {
			t.Errorf("readPID during run: %v", err)
		}
		pidDuringRun = pid
		return &fakeSource{script: []syscall.Signal{syscall.SIGTERM}}, nil
	}
	code, _, _ := runTest(t, open, map[string]string{config.EnvPath: cfgPath})
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if pidDuringRun != os.Getpid() {
		t.Errorf("PID file held %d, want %d", pidDuringRun, os.Getpid())
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Errorf("PID file not removed on exit: %v", err)
	}
}

func TestRun_PIDFileLocked(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "demo.pid")
	held, err := writePID(pidPath)
	if err != nil {
		t.Fatalf("writePID: %v", err)
	}
	defer held.remove()

	cfgPath := filepath.Join(dir, "sigdemo.toml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf("[process]\npid_file = %q\n", pidPath)), 0o644); err != nil {
		t.Fatal(err)
	}
	code, stdout, _ := runTest(t, opener(&fakeSource{}), map[string]string{config.EnvPath: cfgPath})
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if want := "Error on pid file " + pidPath + ".\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}

	if _, token, err := readPID(pidPath); err != nil || token != held.token {
		t.Errorf("locked PID file was modified (token %q, err %v)", token, err)
	}
}

func TestPIDFile_RemoveKeepsForeignFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "demo.pid")
	p, err := writePID(pidPath)
	if err != nil {
		t.Fatalf("writePID: %v", err)
	}
	if err := os.WriteFile(pidPath, []byte("1:someone-else\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p.remove()
	if _, err := os.Stat(pidPath); err != nil {
		t.Errorf("foreign PID file was removed: %v", err)
	}
}

// ///////////////////////////////////////////////
// Live Reload Tests
// ///////////////////////////////////////////////

func TestWatchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigdemo.toml")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("[consumer]\nbreak_on_sigint = false\n")

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := consumer.New(&fakeSource{}, consumer.Options{Out: io.Discard, Logger: log})
	level := new(slog.LevelVar)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan struct{})
	done := make(chan struct{})
	go func() {
		watchConfig(ctx, events, path, env(nil), c, level, log)
		close(done)
	}()

	write("[consumer]\nbreak_on_sigint = true\n[log]\nlevel = \"debug\"\n")
	events <- struct{}{}
	waitFor(t, func() bool { return c.BreakOnInterrupt() })
	waitFor(t, func() bool { return level.Level() == slog.LevelDebug })

	// An invalid file leaves the previous settings alone.
	write("[log]\nlevel = \"loud\"\n")
	events <- struct{}{}
	events <- struct{}{} // returns once the first reload has finished
	write("[consumer]\nbreak_on_sigint = false\n")
	events <- struct{}{}
	waitFor(t, func() bool { return !c.BreakOnInterrupt() })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchConfig did not return after cancel")
	}
	if !strings.Contains(logs.String(), "config reload failed") {
		t.Errorf("expected reload failure to be logged:\n%s", logs.String())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ///////////////////////////////////////////////
// Version Tests
// ///////////////////////////////////////////////

func TestResolveVersion(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "1.2.3"
	if got := resolveVersion(); got != "1.2.3" {
		t.Errorf("resolveVersion() = %q, want ldflags value", got)
	}

	version = "dev"
	if got := resolveVersion(); got != "dev" && !strings.HasPrefix(got, "dev+") {
		t.Errorf("resolveVersion() = %q, want dev or dev+<hash>", got)
	}
}
