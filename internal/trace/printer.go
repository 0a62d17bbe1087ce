package trace

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/kmc/internal/checker"
)

const (
	ansiGreen = "\x1b[1;32m"
	ansiRed   = "\x1b[1;31m"
	ansiReset = "\x1b[0m"
)

// WriterPrinter writes each printed block to w followed by a newline.
type WriterPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// PrinterOption configures a WriterPrinter.
type PrinterOption func(*WriterPrinter)

// WithColor highlights round headers in green and mismatch lines in red.
func WithColor(enabled bool) PrinterOption {
	return func(p *WriterPrinter) {
		p.color = enabled
	}
}

// NewWriterPrinter creates a printer writing to w.
func NewWriterPrinter(w io.Writer, opts ...PrinterOption) *WriterPrinter {
	p := &WriterPrinter{w: w}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Print writes s. Write errors are dropped; the trace is best-effort.
func (p *WriterPrinter) Print(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.color {
		s = colorize(s)
	}
	fmt.Fprintln(p.w, s)
}

func colorize(s string) string {
	switch {
	case strings.HasPrefix(s, "[ "):
		return ansiGreen + s + ansiReset
	case strings.HasSuffix(s, " mismatch"):
		return ansiRed + s + ansiReset
	}
	return s
}

// SlogPrinter forwards each printed block to a logger at debug level.
type SlogPrinter struct {
	logger *slog.Logger
}

// NewSlogPrinter creates a printer logging through logger, or
// slog.Default() when logger is nil.
func NewSlogPrinter(logger *slog.Logger) *SlogPrinter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogPrinter{logger: logger}
}

func (p *SlogPrinter) Print(s string) {
	p.logger.Debug("trace", "event", "checker_trace", "text", s)
}

// Discard drops everything printed to it.
var Discard discard

type discard struct{}

func (discard) Print(string) {}

// Tee prints to every printer in order.
type Tee []checker.Printer

func (t Tee) Print(s string) {
	for _, p := range t {
		p.Print(s)
	}
}
