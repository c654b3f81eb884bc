// Package main implements signalfd-demo, which blocks the configured signals
// (SIGINT and SIGTERM by default) and reads them from a signalfd descriptor.
//
// Add signals to the set through the config file named by SIGDEMO_CONFIG:
//
//	[signals]
//	block = ["INT", "TERM", "USR*"]
//
// With SIGDEMO_BREAK_ON_SIGINT=1, SIGINT calls consumer.Breakpoint instead of
// exiting, giving an attached debugger a place to stop.

//go:build !windows

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fairyfar/gdb-sigwait/internal/cli"
	"github.com/fairyfar/gdb-sigwait/internal/config"
	"github.com/fairyfar/gdb-sigwait/internal/source"
)

// openFD resolves the block list and opens the descriptor over it. A list
// that names no valid signal is reported as a failure to block.
func openFD(cfg *config.Config, log *slog.Logger) (cli.Source, error) {
	sigs, err := source.ParseSet(cfg.Signals.Block)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrBlock, err)
	}
	fd, err := source.NewFD(sigs, log.With("source", "signalfd"))
	if err != nil {
		return nil, err
	}
	return fd, nil
}

func main() {
	os.Exit(cli.Main("signalfd-demo", openFD))
}
