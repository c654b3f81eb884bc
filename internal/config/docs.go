package config

// FieldDoc documents one config key for the generated example file.
type FieldDoc struct {
	// Comment is shown above the key.
	Comment string
	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// Docs maps dotted TOML key paths ("log.level") and section names ("log") to
// their documentation. cmd/genconfig uses it to annotate
// sigdemo.example.toml, including keys omitted from the encoded defaults.
var Docs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	"consumer": {
		Comment: "Dispatch loop settings. Reloaded while the program runs.",
	},
	"consumer.break_on_sigint": {
		Comment: "When true, SIGINT calls consumer.Breakpoint and the program keeps\nwaiting instead of exiting. Also set by " + EnvBreakOnSIGINT + ".",
	},

	"signals": {
		Comment: "Signal set for signalfd-demo. sigwait-demo always waits on every\ncatchable signal.",
	},
	"signals.block": {
		Comment: "Names, numbers or glob patterns. The SIG prefix is optional and\nmatching ignores case.",
		Alternatives: []string{
			`block = ["INT", "TERM", "USR1"]`,
			`block = ["SIGINT", "SIGTERM", "SIGUSR*", "SIGHUP"]`,
		},
	},

	"log": {
		Comment: "Logging. Console notices always go to stdout; logs go to stderr\nunless a file is set.",
	},
	"log.level": {
		Comment:      "trace, debug, info, warn, error or fail. Also set by " + EnvLogLevel + ".",
		Alternatives: []string{`level = "debug"`},
	},
	"log.file": {
		Comment:      "Rotating log file instead of stderr.",
		Alternatives: []string{`file = "/tmp/sigdemo.log"`},
	},
	"log.max_size_mb": {
		Comment: "Rotate the log file after this many megabytes.",
	},
	"log.max_backups": {
		Comment: "Rotated log files to keep.",
	},

	"process": {
		Comment: "Process settings.",
	},
	"process.pid_file": {
		Comment:      "Write the PID here under an exclusive lock, for gdb -p $(cat file).",
		Alternatives: []string{`pid_file = "/tmp/sigdemo.pid"`},
	},
}
