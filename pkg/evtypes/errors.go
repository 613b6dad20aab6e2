package evtypes

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the shell and by command handlers.
var (
	ErrMalformedInput = errors.New("malformed input")
	ErrUnknownCommand = errors.New("unknown command")
	ErrArgument       = errors.New("argument error")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")
)

// CommandError is a user-facing failure returned by a command handler.
// Kind is one of the sentinel errors above and is matched with errors.Is.
type CommandError struct {
	Kind    error
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Kind
}

// ArgumentError reports a wrong argument count or an invalid argument value.
func ArgumentError(format string, args ...interface{}) error {
	return &CommandError{Kind: ErrArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that an entity referenced by the arguments does not exist.
func NotFoundError(format string, args ...interface{}) error {
	return &CommandError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Kind classifies err into one of the sentinel kinds, for logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrArgument):
		return "argument"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrMalformedInput):
		return "malformed-input"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown-command"
	case errors.Is(err, ErrInternal):
		return "internal"
	default:
		return "other"
	}
}
