// Package builtin provides the commands every ev shell has: help, history,
// version and quit.
package builtin

import (
	"ev/internal/history"
	"ev/pkg/evtypes"
)

// InfoIndent is the key indent used by listings.
const InfoIndent = 4

// CommandLister is the part of the registry the help command reads.
type CommandLister interface {
	Lookup(name string) (evtypes.Command, bool)
	List() []evtypes.Command
}

// Deps are the collaborators of the builtin commands.
type Deps struct {
	Commands CommandLister
	History  *history.Store
	// Quit requests the end of the session.
	Quit func()
}

// Commands returns the builtin commands in registration order.
func Commands(deps Deps) []evtypes.Command {
	return []evtypes.Command{
		&HelpCommand{commands: deps.Commands},
		&HistoryCommand{history: deps.History},
		&VersionCommand{},
		&QuitCommand{quit: deps.Quit},
	}
}
