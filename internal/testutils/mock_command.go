package testutils

import (
	"bytes"
	"fmt"
	"strings"

	"ev/pkg/evtypes"
)

// MockCommand implements evtypes.Command for testing and records its calls.
type MockCommand struct {
	name    string
	summary string
	options []evtypes.Option

	// InvokeFunc replaces the default handler, which echoes its arguments.
	InvokeFunc func(args []string) (*bytes.Buffer, error)

	Calls [][]string
}

// NewMockCommand creates a mock command with the given name and options.
func NewMockCommand(name string, options ...evtypes.Option) *MockCommand {
	return &MockCommand{
		name:    name,
		summary: fmt.Sprintf("Mock command: %s", name),
		options: options,
	}
}

func (m *MockCommand) Name() string {
	return m.name
}

func (m *MockCommand) Summary() string {
	return m.summary
}

func (m *MockCommand) Options() []evtypes.Option {
	return m.options
}

func (m *MockCommand) Invoke(args []string) (*bytes.Buffer, error) {
	m.Calls = append(m.Calls, args)
	if m.InvokeFunc != nil {
		return m.InvokeFunc(args)
	}
	return bytes.NewBufferString(strings.Join(args, " ")), nil
}

// Invoked reports how many times the command ran.
func (m *MockCommand) Invoked() int {
	return len(m.Calls)
}

// CompleterSpy is a completer returning fixed candidates and recording calls.
type CompleterSpy struct {
	Candidates []string
	Words      []string
	Lengths    []int
}

// Complete satisfies evtypes.Completer.
func (c *CompleterSpy) Complete(word string, length int) []string {
	c.Words = append(c.Words, word)
	c.Lengths = append(c.Lengths, length)
	return c.Candidates
}

// Called reports how many times the completer ran.
func (c *CompleterSpy) Called() int {
	return len(c.Words)
}
