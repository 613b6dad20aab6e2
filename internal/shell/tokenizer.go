// Package shell implements the interactive ev prompt: tokenizing input,
// completing command names and arguments, dispatching command lines and
// driving the line editor.
package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"ev/pkg/evtypes"
)

// TokenContext is the tokenized view of a line at a cursor position.
type TokenContext struct {
	// Args holds every token of the full line, quotes removed.
	Args []string
	// Cursor is the index of the token under the cursor. It equals
	// len(Args) when the cursor starts a token that does not exist yet.
	Cursor int
	// Offset is the number of runes of the cursor token before the cursor.
	Offset int
}

// Word returns the token under the cursor, or "" past the last token.
func (tc TokenContext) Word() string {
	if tc.Cursor < len(tc.Args) {
		return tc.Args[tc.Cursor]
	}
	return ""
}

// Split tokenizes a full line. Single and double quotes group words and a
// backslash escapes the next character.
func Split(line string) ([]string, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", evtypes.ErrMalformedInput, err)
	}
	return args, nil
}

// Tokenize splits line and locates the token under cursor, a rune index.
// Every call starts from scratch, so a failed parse cannot affect the next.
func Tokenize(line string, cursor int) (TokenContext, error) {
	runes := []rune(line)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}

	args, err := Split(line)
	if err != nil {
		return TokenContext{}, err
	}

	prefix := string(runes[:cursor])
	before, quoted, err := splitPrefix(prefix)
	if err != nil {
		return TokenContext{}, err
	}

	tc := TokenContext{Args: args}
	if !quoted {
		// Appending a plain character either extends the last token or
		// starts a new one; the latter means the cursor is on a boundary.
		probe, err := Split(prefix + "x")
		if err != nil {
			return TokenContext{}, err
		}
		if len(probe) > len(before) {
			tc.Cursor = len(before)
			return tc, nil
		}
	}

	tc.Cursor = len(before) - 1
	tc.Offset = len([]rune(before[len(before)-1]))
	return tc, nil
}

// splitPrefix tokenizes the text before the cursor. The cursor may sit
// inside a quoted token or right after a backslash of a well-formed line,
// in which case the quote or escape is closed for the split and quoted is
// true.
func splitPrefix(prefix string) (tokens []string, quoted bool, err error) {
	tokens, err = shellquote.Split(prefix)
	switch {
	case err == nil:
		return tokens, false, nil
	case errors.Is(err, shellquote.UnterminatedDoubleQuoteError):
		tokens, err = shellquote.Split(prefix + `"`)
	case errors.Is(err, shellquote.UnterminatedSingleQuoteError):
		tokens, err = shellquote.Split(prefix + "'")
	case errors.Is(err, shellquote.UnterminatedEscapeError):
		// The escaped character lies past the cursor; complete the escape
		// with a placeholder and drop it again.
		tokens, err = shellquote.Split(prefix + "x")
		if err == nil {
			last := len(tokens) - 1
			tokens[last] = strings.TrimSuffix(tokens[last], "x")
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", evtypes.ErrMalformedInput, err)
	}
	return tokens, true, nil
}
