// Package tarnctlcli implements the tarnctl command-line tool: a small
// batch client (put/get/ls/gc) against a DiskDict root.
package tarnctlcli

import (
	"fmt"
	"io"
)

// IO wraps a command's stdout/stderr, buffering diagnostic warnings so
// they're visible at both ends of potentially truncated output.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

// NewIO creates an IO around out/errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records a diagnostic that should be visible regardless of how
// much of stdout a caller reads before giving up.
func (o *IO) Warn(msg string) {
	o.warnings = append(o.warnings, msg)
}

// Println writes to stdout, flushing any buffered warnings to stderr
// first so they precede the output they concern.
func (o *IO) Println(a ...any) {
	o.flushStart()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	o.flushStart()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes directly to stderr, bypassing warning buffering.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish flushes any remaining warnings to stderr and returns the exit
// code: 1 if any warnings were recorded, 0 otherwise.
func (o *IO) Finish() int {
	o.flushStart()

	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	if len(o.warnings) > 0 {
		return 1
	}
	return 0
}

func (o *IO) flushStart() {
	if !o.started && len(o.warnings) > 0 {
		for _, w := range o.warnings {
			_, _ = fmt.Fprintln(o.errOut, "warning:", w)
		}
		o.started = true
	}
}
