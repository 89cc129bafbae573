// Package ui prints leveled stderr messages: an
// informational "[+]" prefix, a warning "[!]" prefix, and an error "[x]"
// prefix, colored via fatih/color and respecting --no-color/NO_COLOR and
// non-TTY output. stdout never carries one of these lines - only stderr.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// Init configures global color behavior for the process: color is turned
// off when noColor is set or stderr is not a terminal. The quiet setting
// that suppresses Info is applied separately, through SetQuiet.
func Init(noColor bool) {
	if noColor || !isatty.IsTerminal(os.Stderr.Fd()) {
		color.NoColor = true
	}
}

// Printer writes leveled messages to a single stream (always stderr in
// production, swappable in tests), honoring a quiet flag that suppresses
// Info but never Warn or Error.
type Printer struct {
	w     io.Writer
	quiet bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, quiet bool) *Printer {
	return &Printer{w: w, quiet: quiet}
}

// Stderr is the process-wide default printer.
var Stderr = NewPrinter(os.Stderr, false)

// SetQuiet toggles suppression of Info-level messages on the default printer.
func SetQuiet(q bool) { Stderr.quiet = q }

func (p *Printer) Info(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.w, green.Sprint("[+] ")+fmt.Sprintf(format, args...))
}

func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, yellow.Sprint("[!] ")+fmt.Sprintf(format, args...))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, red.Sprint("[x] ")+fmt.Sprintf(format, args...))
}

func Info(format string, args ...any)  { Stderr.Info(format, args...) }
func Warn(format string, args ...any)  { Stderr.Warn(format, args...) }
func Error(format string, args ...any) { Stderr.Error(format, args...) }

// Banner prints the startup banner unless suppressed, matching --no-banner.
func Banner(version string) {
	fmt.Fprintln(os.Stderr, color.New(color.Bold, color.FgCyan).Sprintf("chainsaw %s", version))
}
