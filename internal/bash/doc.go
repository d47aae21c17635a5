// Package bash implements the persistent command-execution session
// core: one bash process per session on a pseudo-terminal, driven by a
// polling state machine that detects command completion through a
// synthetic prompt sentinel.
//
// Components:
//   - Validate: classifies a submission as one executable statement or
//     rejects it before it reaches the terminal
//   - PS1/Scan: the prompt protocol; the sentinel injected into the
//     shell's prompt carries exit code, running flag, and working
//     directory, and Scan recovers them from raw output
//   - Normalize: strips control sequences and enforces the output
//     retention cap with head and tail windows
//   - Session: the per-session execution state machine
//   - Manager: the id -> Session registry
//
// Sessions are independent; within a session, command execution is
// strictly serialized: at most one command is in flight at a time.
package bash
