// Package commands provides command registration and lookup for ev.
// Commands are contributed by several components at startup and looked up by
// the shell when completing or dispatching a line.
package commands

import (
	"fmt"

	"ev/pkg/evtypes"
)

// Registry is an ordered mapping from command name to Command.
// It is filled once at startup and read-only afterwards.
type Registry struct {
	order    []evtypes.Command
	commands map[string]evtypes.Command
}

// NewRegistry creates a new command registry with an empty command map.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]evtypes.Command),
	}
}

// Register appends a batch of commands in order. Returns an error if a
// command name is empty or already registered; commands of the batch that
// precede the offending one stay registered.
func (r *Registry) Register(cmds ...evtypes.Command) error {
	for _, cmd := range cmds {
		if cmd == nil || cmd.Name() == "" {
			return fmt.Errorf("command name cannot be empty")
		}

		if _, exists := r.commands[cmd.Name()]; exists {
			return fmt.Errorf("command %s already registered", cmd.Name())
		}

		r.commands[cmd.Name()] = cmd
		r.order = append(r.order, cmd)
	}
	return nil
}

// Lookup retrieves a command by its exact, case-sensitive name.
func (r *Registry) Lookup(name string) (evtypes.Command, bool) {
	cmd, exists := r.commands[name]
	return cmd, exists
}

// List returns all commands in registration order.
// The returned slice is a copy and can be safely modified.
func (r *Registry) List() []evtypes.Command {
	commands := make([]evtypes.Command, len(r.order))
	copy(commands, r.order)
	return commands
}

// Names returns the registered command names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, cmd := range r.order {
		names = append(names, cmd.Name())
	}
	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.order)
}
