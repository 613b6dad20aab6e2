package shell

import (
	"bytes"
	"fmt"
	"strings"

	"ev/internal/logger"
	"ev/internal/output"
	"ev/pkg/evtypes"
)

const internalErrorMessage = "Internal error - Command failed to set error"

// Dispatcher resolves tokenized command lines and renders their results.
type Dispatcher struct {
	commands CommandSource
	printer  *output.Printer
}

// NewDispatcher creates a dispatcher printing through printer.
func NewDispatcher(commands CommandSource, printer *output.Printer) *Dispatcher {
	return &Dispatcher{commands: commands, printer: printer}
}

// Run invokes the command named by tokens[0] with the remaining tokens.
// Results and failures are rendered to the printer; the returned error only
// tells the caller what happened and never needs further handling.
func (d *Dispatcher) Run(tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	name, ok := strings.CutPrefix(tokens[0], evtypes.CommandMarker)
	if !ok {
		return fmt.Errorf("%w: %q lacks the command marker", evtypes.ErrUnknownCommand, tokens[0])
	}

	cmd, ok := d.commands.Lookup(name)
	if !ok {
		d.printer.Error(fmt.Sprintf("Unknown command '%s'", name))
		return fmt.Errorf("%w: %s", evtypes.ErrUnknownCommand, name)
	}

	args := tokens[1:]
	logger.CommandExecution(name, args)

	out, err := invoke(cmd, args)
	switch {
	case err != nil:
		d.printer.Error(fmt.Sprintf("Command failed: %s", err.Error()))
		logger.Debug("Command failed", "command", name, "kind", evtypes.Kind(err), "error", err)
		return err
	case out == nil:
		d.printer.Error(internalErrorMessage)
		logger.Warn("Command returned neither output nor error", "command", name)
		return fmt.Errorf("%w: %s returned neither output nor error", evtypes.ErrInternal, name)
	case out.Len() > 0:
		d.printer.Printf("\n%s\n", out.String())
	}
	return nil
}

func invoke(cmd evtypes.Command, args []string) (out *bytes.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Command panicked", "command", cmd.Name(), "panic", r)
			out, err = nil, nil
		}
	}()
	return cmd.Invoke(args)
}
