// Package logger provides the structured logger shared by both demos.
//
// Records are written one per line:
//
//	2006-01-02T15:04:05.000Z sigwait-demo[4242] INFO  message key=value key2="two words"
//
// Standard output carries the programs' console notices, so log output goes
// to stderr, or to a rotating file when one is configured.
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): per-signal plumbing detail
//   - LevelFail  (12): the error that ends the process
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

// levelNames maps every named level to its display form, padded to the
// widest name so messages line up.
var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO ",
	LevelWarn:  "WARN ",
	LevelError: "ERROR",
	LevelFail:  "FAIL ",
}

// levelName returns the display name for l, rounding up to the next named
// level for values in between.
func levelName(l slog.Level) string {
	for _, named := range []slog.Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if l <= named {
			return levelNames[named]
		}
	}
	return levelNames[LevelFail]
}

// ParseLevel converts a case-insensitive level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(s)) {
			return l, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// Handler is a slog.Handler producing the single-line format documented on
// the package.
type Handler struct {
	w io.Writer
	// mu is shared by handlers derived through WithAttrs/WithGroup so their
	// lines never interleave.
	mu     *sync.Mutex
	level  slog.Leveler
	prefix string // "program[pid]"
	// preformatted holds attributes added with WithAttrs, already rendered.
	preformatted string
	// groups is the dotted key prefix from WithGroup, "" or ending in ".".
	groups string
}

// NewHandler creates a Handler writing to w. program and pid form the line
// prefix; records below level are dropped.
func NewHandler(w io.Writer, program string, pid int, level slog.Leveler) *Handler {
	return &Handler{
		w:      w,
		mu:     &sync.Mutex{},
		level:  level,
		prefix: program + "[" + strconv.Itoa(pid) + "]",
	}
}

// Enabled reports whether records at level are written.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes r.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteByte(' ')
	b.WriteString(h.prefix)
	b.WriteByte(' ')
	b.WriteString(levelName(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.preformatted)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.groups, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a Handler that appends attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	b.WriteString(h.preformatted)
	for _, a := range attrs {
		writeAttr(&b, h.groups, a)
	}
	h2 := *h
	h2.preformatted = b.String()
	return &h2
}

// WithGroup returns a Handler that qualifies later keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = h.groups + name + "."
	return &h2
}

// writeAttr appends " key=value" with key qualified by prefix. Values
// containing spaces, quotes or equals signs are quoted; groups are flattened
// into dotted keys.
func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(b, prefix, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	s := v.String()
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [New].
type Options struct {
	// Program names the process in every line.
	Program string
	// Level is the minimum level written.
	Level slog.Leveler
	// File, when set, sends output to a lumberjack-rotated file instead of
	// Stderr.
	File string
	// MaxSizeMB is the rotation threshold for File.
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
	// Stderr is the destination when File is empty. Defaults to os.Stderr.
	Stderr io.Writer
}

// nopCloser lets New return a closer for stderr output.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger from opts. The returned io.Closer must be closed on
// exit to flush a log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Level == nil {
		opts.Level = LevelInfo
	}
	var (
		w      io.Writer = opts.Stderr
		closer io.Closer = nopCloser{}
	)
	if w == nil {
		w = os.Stderr
	}
	if opts.File != "" {
		if opts.MaxSizeMB <= 0 {
			return nil, nil, fmt.Errorf("log max size must be > 0, got %d", opts.MaxSizeMB)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		w, closer = lj, lj
	}
	h := NewHandler(w, opts.Program, os.Getpid(), opts.Level)
	return slog.New(h), closer, nil
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}
