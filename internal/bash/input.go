package bash

import "strings"

// ControlKey names a terminal control byte that can be injected as a
// keystroke.
type ControlKey byte

const (
	KeyInterrupt ControlKey = 0x03 // Ctrl-C
	KeyEOF       ControlKey = 0x04 // Ctrl-D
	KeySuspend   ControlKey = 0x1a // Ctrl-Z
)

// Input is a tagged keystroke payload: literal text or a named control
// key. The tag removes any ambiguity about what counts as a control
// sequence.
type Input struct {
	literal string
	key     ControlKey
	isKey   bool
}

// Literal wraps text to be typed into the terminal, newline-terminated.
func Literal(text string) Input {
	return Input{literal: text}
}

// Control wraps a named control key.
func Control(key ControlKey) Input {
	return Input{key: key, isKey: true}
}

// controlTokens are the reserved tokens the protocol maps to control
// bytes instead of literal text.
var controlTokens = map[string]ControlKey{
	"c-c": KeyInterrupt,
	"c-d": KeyEOF,
	"c-z": KeySuspend,
}

// ParseInput maps a reserved control token to its key; any other text
// is literal keystrokes.
func ParseInput(text string) Input {
	if key, ok := controlTokens[strings.ToLower(strings.TrimSpace(text))]; ok {
		return Control(key)
	}
	return Literal(text)
}

// Bytes returns the exact bytes to write into the terminal's input
// stream.
func (in Input) Bytes() []byte {
	if in.isKey {
		return []byte{byte(in.key)}
	}
	return []byte(in.literal + "\n")
}

// IsControl reports whether the input is a named control key.
func (in Input) IsControl() bool { return in.isKey }
