package bash

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// truncationMarker joins the head and tail windows of over-cap output.
const truncationMarker = "\n[... output truncated ...]\n"

// Normalize strips terminal control sequences from raw output and
// enforces the retention cap. When the cap is exceeded, a head and a
// tail window are kept so both the start and the end of long output
// remain visible, and truncated is reported; output is never dropped
// silently.
func Normalize(raw []byte, maxBytes int) (text string, truncated bool) {
	text = ansi.Strip(string(raw))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")

	if maxBytes > 0 && len(text) > maxBytes {
		truncated = true
		window := (maxBytes - len(truncationMarker)) / 2
		if window < 1 {
			window = 1
		}
		head := truncToRune(text[:window])
		tail := truncFromRune(text[len(text)-window:])
		text = head + truncationMarker + tail
	}

	return text, truncated
}

// truncToRune trims trailing bytes that would split a UTF-8 sequence.
func truncToRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[:len(s)-1]
			continue
		}
		break
	}
	return s
}

// truncFromRune drops leading continuation bytes of a split sequence.
func truncFromRune(s string) string {
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	return s
}
