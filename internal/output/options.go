package output

import (
	"io"

	"github.com/muesli/termenv"
)

// Option is a functional option for configuring Printer instances.
type Option func(*Printer)

// WithWriter configures the printer to write output to the specified writer.
// Default is os.Stdout if not specified.
func WithWriter(writer io.Writer) Option {
	return func(p *Printer) {
		if writer != nil {
			p.writer = writer
		}
	}
}

// PlainText disables colors regardless of the terminal capabilities.
func PlainText() Option {
	return func(p *Printer) {
		p.profile = termenv.Ascii
		p.forceProfile = true
	}
}

// WithColors forces ANSI colors even when the writer is not a terminal.
func WithColors() Option {
	return func(p *Printer) {
		p.profile = termenv.ANSI256
		p.forceProfile = true
	}
}

// Silent configures the printer to suppress all output.
func Silent() Option {
	return func(p *Printer) {
		p.silent = true
	}
}
