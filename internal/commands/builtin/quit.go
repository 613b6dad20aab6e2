package builtin

import (
	"bytes"

	"ev/pkg/evtypes"
)

// QuitCommand implements /quit, ending the session after the current line.
type QuitCommand struct {
	quit func()
}

// Name returns the command name "quit".
func (c *QuitCommand) Name() string {
	return "quit"
}

// Summary returns a brief description of the quit command.
func (c *QuitCommand) Summary() string {
	return "Quit the application"
}

// Options returns no options.
func (c *QuitCommand) Options() []evtypes.Option {
	return nil
}

// Invoke requests termination and produces no output.
func (c *QuitCommand) Invoke(_ []string) (*bytes.Buffer, error) {
	if c.quit != nil {
		c.quit()
	}
	return &bytes.Buffer{}, nil
}
