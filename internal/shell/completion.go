package shell

import (
	"strings"

	"ev/pkg/evtypes"
)

// CommandSource is the read-only view of the command registry the shell needs.
type CommandSource interface {
	Lookup(name string) (evtypes.Command, bool)
	List() []evtypes.Command
}

// CompletionKind tells the line editor how to present a completion.
type CompletionKind int

const (
	// CompletionNone means nothing matched; the line is left alone.
	CompletionNone CompletionKind = iota
	// CompletionInsert means Insert is to be typed at the cursor.
	CompletionInsert
	// CompletionList means the candidates are shown below the unchanged line.
	CompletionList
)

// Completion is the outcome of a Tab press.
type Completion struct {
	Kind       CompletionKind
	Insert     string
	Candidates []string
}

// Engine produces completion candidates from the registered commands.
type Engine struct {
	commands CommandSource
}

// NewEngine creates a completion engine over commands.
func NewEngine(commands CommandSource) *Engine {
	return &Engine{commands: commands}
}

// Candidates returns the completions for the token under the cursor.
//
// While the cursor is in the only token, command names are completed: the
// token must start with the command marker and every command whose name has
// the typed text as prefix is a candidate, as a full "/name" token.
// Otherwise the first token names the command and the option at position
// Cursor-1 supplies the candidates through its completer, unfiltered.
func (e *Engine) Candidates(tc TokenContext) []string {
	if tc.Cursor == 0 && len(tc.Args) < 2 {
		return e.commandCandidates(tc.Word(), tc.Offset)
	}
	if tc.Cursor == 0 || len(tc.Args) == 0 {
		return nil
	}

	name, ok := strings.CutPrefix(tc.Args[0], evtypes.CommandMarker)
	if !ok {
		return nil
	}
	cmd, ok := e.commands.Lookup(name)
	if !ok {
		return nil
	}

	options := cmd.Options()
	pos := tc.Cursor - 1
	if pos >= len(options) {
		return nil
	}
	return options[pos].Complete(tc.Word(), tc.Offset)
}

func (e *Engine) commandCandidates(word string, offset int) []string {
	typed := []rune(word)
	if offset < len(typed) {
		typed = typed[:offset]
	}
	prefix, ok := strings.CutPrefix(string(typed), evtypes.CommandMarker)
	if !ok {
		return nil
	}

	var candidates []string
	for _, cmd := range e.commands.List() {
		if strings.HasPrefix(cmd.Name(), prefix) {
			candidates = append(candidates, evtypes.CommandMarker+cmd.Name())
		}
	}
	return candidates
}

// Complete tokenizes line at cursor and decides how to present the result.
func (e *Engine) Complete(line string, cursor int) (Completion, error) {
	tc, err := Tokenize(line, cursor)
	if err != nil {
		return Completion{}, err
	}
	return Render(e.Candidates(tc), tc.Offset), nil
}

// Render turns a candidate set into a Completion. A single candidate
// inserts the part beyond the offset runes already typed plus a space.
func Render(candidates []string, offset int) Completion {
	switch len(candidates) {
	case 0:
		return Completion{Kind: CompletionNone}
	case 1:
		candidate := []rune(candidates[0])
		if offset > len(candidate) {
			offset = len(candidate)
		}
		return Completion{
			Kind:       CompletionInsert,
			Insert:     string(candidate[offset:]) + " ",
			Candidates: candidates,
		}
	default:
		return Completion{Kind: CompletionList, Candidates: candidates}
	}
}
