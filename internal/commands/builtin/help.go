package builtin

import (
	"bytes"
	"fmt"
	"strings"

	"ev/internal/output"
	"ev/pkg/evtypes"
)

// HelpCommand implements /help for listing commands and describing one.
type HelpCommand struct {
	commands CommandLister
}

// Name returns the command name "help" for registration and lookup.
func (c *HelpCommand) Name() string {
	return "help"
}

// Summary returns a brief description of what the help command does.
func (c *HelpCommand) Summary() string {
	return "Show this help"
}

// Options declares the optional command name, completed from the registry.
func (c *HelpCommand) Options() []evtypes.Option {
	return []evtypes.Option{
		{
			Name:        "command",
			Description: "The command to print help for",
			Optional:    true,
			Completer:   c.completeCommand,
		},
	}
}

// Invoke lists all commands, or describes the one named by args[0].
func (c *HelpCommand) Invoke(args []string) (*bytes.Buffer, error) {
	if len(args) > 0 {
		return c.describe(args[0])
	}

	builder := output.NewBuilder().SetIndent(InfoIndent)
	for _, cmd := range c.commands.List() {
		builder.Add(cmd.Name(), cmd.Summary())
	}
	return builder.End(), nil
}

func (c *HelpCommand) describe(name string) (*bytes.Buffer, error) {
	cmd, ok := c.commands.Lookup(strings.TrimPrefix(name, evtypes.CommandMarker))
	if !ok {
		return nil, evtypes.NotFoundError("Unknown command %s", name)
	}

	out := &bytes.Buffer{}
	fmt.Fprintf(out, "  %s - %s\n\n", cmd.Name(), cmd.Summary())
	fmt.Fprintf(out, "  Usage:\n")
	fmt.Fprintf(out, "    %s\n", evtypes.Usage(cmd))

	options := cmd.Options()
	maxLen := 0
	for _, opt := range options {
		if len(opt.Name) > maxLen {
			maxLen = len(opt.Name)
		}
	}
	maxLen += 4
	for _, opt := range options {
		fmt.Fprintf(out, "%*s : %s\n", maxLen, opt.Name, opt.Description)
	}

	out.WriteString("\n")
	return out, nil
}

func (c *HelpCommand) completeCommand(word string, length int) []string {
	typed := []rune(word)
	if length < len(typed) {
		typed = typed[:length]
	}

	var names []string
	for _, cmd := range c.commands.List() {
		if strings.HasPrefix(cmd.Name(), string(typed)) {
			names = append(names, cmd.Name())
		}
	}
	return names
}
