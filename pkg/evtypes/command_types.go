// Package evtypes defines the contracts shared between the shell core and the
// components that contribute commands to it.
package evtypes

import "bytes"

// CommandMarker is the leading character that distinguishes a dispatchable
// command line from ordinary text.
const CommandMarker = "/"

// Completer supplies candidate completions for one argument position.
// word is the partial text under the cursor and length the number of runes
// of it that were typed before the cursor. Completers must be fast and free
// of side effects.
type Completer func(word string, length int) []string

// Option describes one positional argument of a Command.
type Option struct {
	Name        string
	Description string
	// Optional only affects help rendering; the dispatcher never enforces it.
	Optional bool
	// Completer may be nil, meaning no completion is available.
	Completer Completer
}

// Complete runs the option's completer, returning nil when there is none.
func (o Option) Complete(word string, length int) []string {
	if o.Completer == nil {
		return nil
	}
	return o.Completer(word, length)
}

// Command is a named, invocable action registered with the shell.
//
// Options are ordered with no trailing sentinel: the i-th argument after the
// command name maps to Options()[i].
//
// Invoke returns either an output buffer or an error. A handler returning a
// nil buffer together with a nil error is treated as an internal defect.
type Command interface {
	Name() string
	Summary() string
	Options() []Option
	Invoke(args []string) (*bytes.Buffer, error)
}

// Usage renders the usage line of a command, bracketing optional options.
func Usage(cmd Command) string {
	var b bytes.Buffer
	b.WriteString(CommandMarker)
	b.WriteString(cmd.Name())
	for _, opt := range cmd.Options() {
		b.WriteByte(' ')
		if opt.Optional {
			b.WriteString("[" + opt.Name + "]")
		} else {
			b.WriteString(opt.Name)
		}
	}
	return b.String()
}
