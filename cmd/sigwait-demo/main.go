// Package main implements sigwait-demo, which installs handlers for SIGTERM
// and SIGINT and then blocks waiting for any catchable signal.
//
// Send it signals with kill(1):
//
//	kill -USR1 <pid>   # Unhandled signal [10]
//	kill -TERM <pid>   # SIGTERM arrived. Exit now.
//
// With SIGDEMO_BREAK_ON_SIGINT=1, SIGINT calls consumer.Breakpoint instead of
// exiting, giving an attached debugger a place to stop.

//go:build !windows

package main

import (
	"log/slog"
	"os"

	"github.com/fairyfar/gdb-sigwait/internal/cli"
	"github.com/fairyfar/gdb-sigwait/internal/config"
	"github.com/fairyfar/gdb-sigwait/internal/source"
)

// openWait ignores the block list; the wait always covers the full set.
func openWait(_ *config.Config, log *slog.Logger) (cli.Source, error) {
	w, err := source.NewWait(log.With("source", "sigwait"))
	if err != nil {
		return nil, err
	}
	return w, nil
}

func main() {
	os.Exit(cli.Main("sigwait-demo", openWait))
}
