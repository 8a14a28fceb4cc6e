// Package cli provides terminal output helpers for conedexctl: status lines
// and a spinner for long-running operations.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

// Printer writes status lines, colored when the writer is a terminal.
type Printer struct {
	w        io.Writer
	colorize bool
}

// NewPrinter returns a printer for w. Color is enabled only when w is a
// character device.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, colorize: isTerminal(w)}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

// Success prints a success message.
func (p *Printer) Success(format string, args ...interface{}) {
	p.line(ColorGreen, "✓", format, args...)
}

// Error prints an error message.
func (p *Printer) Error(format string, args ...interface{}) {
	p.line(ColorRed, "✗", format, args...)
}

// Warning prints a warning message.
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line(ColorYellow, "!", format, args...)
}

// Info prints an informational message.
func (p *Printer) Info(format string, args ...interface{}) {
	p.line(ColorBlue, "i", format, args...)
}

func (p *Printer) line(color, mark, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if p.colorize {
		fmt.Fprintf(p.w, "%s%s%s %s\n", color, mark, ColorReset, msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", mark, msg)
}

// Spinner animates a single status line while work runs. On a non-terminal
// writer it prints the prefix once and stays quiet.
type Spinner struct {
	printer *Printer
	frames  []string
	prefix  string
	current int
	mu      sync.Mutex
	active  bool
	done    chan struct{}
	stopped chan struct{}
}

// Spinner returns a stopped spinner that writes through p.
func (p *Printer) Spinner(prefix string) *Spinner {
	return &Spinner{
		printer: p,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:  prefix,
	}
}

// Start begins animating.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	if !s.printer.colorize {
		fmt.Fprintf(s.printer.w, "%s...\n", s.prefix)
		return
	}
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.loop(s.done, s.stopped)
}

func (s *Spinner) loop(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			frame := ColorCyan + s.frames[s.current] + ColorReset
			s.current = (s.current + 1) % len(s.frames)
			fmt.Fprintf(s.printer.w, "\r%s %s", frame, s.prefix)
			s.mu.Unlock()
		}
	}
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	done, stopped := s.done, s.stopped
	s.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	<-stopped
	fmt.Fprint(s.printer.w, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

// Success stops the spinner and prints a success message.
func (s *Spinner) Success(format string, args ...interface{}) {
	s.Stop()
	s.printer.Success(format, args...)
}

// Error stops the spinner and prints an error message.
func (s *Spinner) Error(format string, args ...interface{}) {
	s.Stop()
	s.printer.Error(format, args...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
