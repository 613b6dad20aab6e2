package builtin

import (
	"bytes"
	"fmt"

	"ev/internal/history"
	"ev/pkg/evtypes"
)

// HistoryCommand implements /history, printing remembered lines oldest first.
type HistoryCommand struct {
	history *history.Store
}

// Name returns the command name "history".
func (c *HistoryCommand) Name() string {
	return "history"
}

// Summary returns a brief description of the history command.
func (c *HistoryCommand) Summary() string {
	return "Print command history"
}

// Options returns no options.
func (c *HistoryCommand) Options() []evtypes.Option {
	return nil
}

// Invoke prints one numbered entry per line.
func (c *HistoryCommand) Invoke(_ []string) (*bytes.Buffer, error) {
	out := &bytes.Buffer{}
	entries := c.history.All()
	for i := len(entries) - 1; i >= 0; i-- {
		fmt.Fprintf(out, "%4d %s\n", entries[i].Index, entries[i].Line)
	}
	return out, nil
}
