// Package cli is the bootstrap shared by signalfd-demo and sigwait-demo.
//
// [Main] loads the configuration, builds the logger, opens the program's
// signal source and runs the consumer until it stops. Console notices and
// the single diagnostic line on failure go to stdout; everything else is
// logged to stderr (or the configured log file).
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/fairyfar/gdb-sigwait/internal/config"
	"github.com/fairyfar/gdb-sigwait/internal/consumer"
	"github.com/fairyfar/gdb-sigwait/internal/logger"
	"github.com/fairyfar/gdb-sigwait/internal/source"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Source is a signal source the bootstrap can release on exit.
type Source interface {
	consumer.Source
	Close() error
}

// Opener creates the program's signal source. Errors should belong to the
// source package's taxonomy so [source.Diagnostic] can describe them.
type Opener func(cfg *config.Config, log *slog.Logger) (Source, error)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/fairyfar/gdb-sigwait/internal/cli.version=0.1.0"
//
// Without ldflags, resolveVersion falls back to the VCS info the toolchain
// embeds.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state produce a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

// Main runs program with the source built by open and returns the process
// exit code. Command-line arguments are ignored.
func Main(program string, open Opener) int {
	return run(context.Background(), program, open, os.Stdout, os.Stderr, os.Getenv)
}

// run is Main with its dependencies injected.
func run(ctx context.Context, program string, open Opener, stdout, stderr io.Writer, getenv func(string) string) int {
	path := getenv(config.EnvPath)
	cfg, err := loadConfig(path, getenv)
	if err != nil {
		fmt.Fprintf(stdout, "Error on config: %v\n", err)
		return ExitFailure
	}

	level := new(slog.LevelVar)
	lvl, _ := logger.ParseLevel(cfg.Log.Level) // validated by loadConfig
	level.Set(lvl)

	log, logCloser, err := logger.New(logger.Options{
		Program:    program,
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Stderr:     stderr,
	})
	if err != nil {
		fmt.Fprintf(stdout, "Error on log: %v\n", err)
		return ExitFailure
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("starting", "version", resolveVersion(), "pid", os.Getpid(), "config", path)

	if cfg.Process.PIDFile != "" {
		pid, err := writePID(cfg.Process.PIDFile)
		if err != nil {
			logger.Fail(log, "pid file", "error", err)
			fmt.Fprintf(stdout, "Error on pid file %s.\n", cfg.Process.PIDFile)
			return ExitFailure
		}
		defer pid.remove()
	}

	src, err := open(cfg, log)
	if err != nil {
		logger.Fail(log, "setup failed", "error", err)
		fmt.Fprintln(stdout, source.Diagnostic(err))
		return ExitFailure
	}
	defer src.Close()

	c := consumer.New(src, consumer.Options{
		BreakOnInterrupt: cfg.Consumer.BreakOnSIGINT,
		Out:              stdout,
		Logger:           log,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if path != "" {
		w, err := config.NewWatcher(path)
		if err != nil {
			log.Warn("config watcher unavailable", "path", path, "error", err)
		} else {
			defer w.Close()
			if w.Polling() {
				log.Info("using polling mode for config watching")
			}
			go watchConfig(ctx, w.Events(), path, getenv, c, level, log)
		}
	}

	log.Info("waiting for signals", "break_on_sigint", c.BreakOnInterrupt())
	if err := c.Run(ctx); err != nil {
		logger.Fail(log, "signal loop failed", "error", err)
		fmt.Fprintln(stdout, source.Diagnostic(err))
		return ExitFailure
	}
	log.Info("exiting")
	return ExitOK
}

// loadConfig reads the file at path (if any) and applies the environment.
func loadConfig(path string, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Live Reload
// ///////////////////////////////////////////////

// watchConfig reloads the configuration on every change event and applies
// the settings that can change at runtime: the debug-break flag and the log
// level. An invalid file is logged and the previous settings stay in force.
func watchConfig(ctx context.Context, events <-chan struct{}, path string, getenv func(string) string,
	c *consumer.Consumer, level *slog.LevelVar, log *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			cfg, err := loadConfig(path, getenv)
			if err != nil {
				log.Warn("config reload failed, keeping previous settings", "path", path, "error", err)
				continue
			}
			if lvl, err := logger.ParseLevel(cfg.Log.Level); err == nil && lvl != level.Level() {
				level.Set(lvl)
				log.Info("log level changed", "level", cfg.Log.Level)
			}
			c.SetBreakOnInterrupt(cfg.Consumer.BreakOnSIGINT)
			log.Debug("config reloaded", "path", path)
		}
	}
}
