package bash

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed indicates the terminal process died. All further
	// actions on the session fail until it is reset.
	ErrSessionClosed = errors.New("terminal process has exited; reset the session")

	// ErrCommandInFlight indicates a concurrent submission while a
	// command is still executing. Submissions are never queued.
	ErrCommandInFlight = errors.New("a command is already in flight for this session")

	// ErrAwaitingInput indicates a new command was submitted while the
	// previous one is still running and waiting for input.
	ErrAwaitingInput = errors.New("previous command is still running; send keystrokes with is_input or interrupt it with C-c")

	// ErrNotAwaitingInput indicates keystrokes were sent to a session
	// with no command waiting for input.
	ErrNotAwaitingInput = errors.New("no command is awaiting input in this session")

	// ErrEmptyCommand indicates an empty submission outside the
	// awaiting-input state, where an empty command polls the running one.
	ErrEmptyCommand = errors.New("command is empty and no command is awaiting input")

	// ErrManagerClosed indicates the session manager has shut down.
	ErrManagerClosed = errors.New("session manager is shut down")
)

// MultiStatementError reports a submission that parses into more than
// one top-level statement.
type MultiStatementError struct {
	Statements int
}

func (e *MultiStatementError) Error() string {
	return fmt.Sprintf("command contains %d top-level statements; submit exactly one (chain with && or ||, or pipe)", e.Statements)
}

// ParseError reports a submission the shell grammar could not parse at
// all, e.g. unterminated quoting or an unfinished heredoc.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("command is not valid shell syntax: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DesyncError reports that captured output never yielded a well-formed
// sentinel. The shell's state can no longer be trusted and the session
// must be reset.
type DesyncError struct {
	SessionID string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("session %s: no well-formed prompt observed; session requires reset", e.SessionID)
}
