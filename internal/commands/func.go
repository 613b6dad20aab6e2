package commands

import (
	"bytes"

	"ev/pkg/evtypes"
)

// Handler is the invocation half of a Command.
type Handler func(args []string) (*bytes.Buffer, error)

// Func adapts a static description and a handler function to evtypes.Command.
type Func struct {
	Cmd     string
	Help    string
	Args    []evtypes.Option
	Handler Handler
}

var _ evtypes.Command = (*Func)(nil)

// Name returns the command name.
func (f *Func) Name() string {
	return f.Cmd
}

// Summary returns the one-line help text.
func (f *Func) Summary() string {
	return f.Help
}

// Options returns the positional argument descriptors.
func (f *Func) Options() []evtypes.Option {
	return f.Args
}

// Invoke runs the handler. A missing handler yields neither output nor error,
// which the dispatcher reports as an internal error.
func (f *Func) Invoke(args []string) (*bytes.Buffer, error) {
	if f.Handler == nil {
		return nil, nil
	}
	return f.Handler(args)
}
