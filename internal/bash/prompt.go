package bash

import (
	"bytes"
	"strconv"
	"strings"
)

// The sentinel is the synthetic prompt the session injects into PS1.
// The shell redraws it after every foreground command, expanding $?
// and $PWD itself, so the captured byte stream carries exit code and
// working directory without any side-channel OS calls.
//
// Wire form, on a line of its own:
//
//	###CODEBOX[<exit>:<flag>:<cwd>]###
//
// Field order and delimiters are fixed so a plain substring search
// finds candidates; each field is validated against its value domain
// before a candidate is trusted, since command output may
// coincidentally contain delimiter-like text.
const (
	sentinelPrefix = "###CODEBOX["
	sentinelSuffix = "]###"
	fieldSep       = ':'

	// A real sentinel body (exit code, flag, absolute path) stays well
	// under this; anything longer is a false candidate.
	maxSentinelBody = 4096
)

// PS1 returns the prompt value exported at session start. The \n are
// bash prompt escapes; $? and $PWD expand at prompt-display time.
func PS1() string {
	return `\n` + sentinelPrefix + `$?:0:$PWD` + sentinelSuffix + `\n`
}

// PromptState is the machine-readable shell state parsed from one
// sentinel.
type PromptState struct {
	ExitCode   int
	Running    bool
	WorkingDir string
}

// MatchKind classifies one Scan result.
type MatchKind int

const (
	// MatchNone: no sentinel and no chance the buffered tail starts one.
	MatchNone MatchKind = iota
	// MatchPartial: the tail may be an incomplete sentinel; wait for
	// more bytes before deciding.
	MatchPartial
	// MatchFull: a validated sentinel was found.
	MatchFull
)

// Match is the result of scanning accumulated output for a sentinel.
type Match struct {
	Kind  MatchKind
	State PromptState

	// Start and End delimit the sentinel in the scanned buffer,
	// including the surrounding newlines the prompt emits. Bytes before
	// Start belong to the command; bytes from End on belong to whatever
	// the shell printed next.
	Start int
	End   int
}

// Scan searches buf for the first complete, validated sentinel. It is
// a pure function so the recognizer can be tested without a terminal.
// Invalid candidates are skipped and scanning continues.
func Scan(buf []byte) Match {
	from := 0
	for {
		i := bytes.Index(buf[from:], []byte(sentinelPrefix))
		if i < 0 {
			if tailOpensSentinel(buf) {
				return Match{Kind: MatchPartial}
			}
			return Match{Kind: MatchNone}
		}
		start := from + i
		body := buf[start+len(sentinelPrefix):]

		j := bytes.Index(body, []byte(sentinelSuffix))
		if j < 0 {
			if len(body) > maxSentinelBody {
				// Unclosed false candidate; look past it.
				from = start + len(sentinelPrefix)
				continue
			}
			return Match{Kind: MatchPartial}
		}

		state, ok := parseSentinelBody(body[:j])
		if !ok {
			from = start + len(sentinelPrefix)
			continue
		}

		end := start + len(sentinelPrefix) + j + len(sentinelSuffix)
		// Fold the prompt's own newlines into the sentinel span so they
		// never leak into command output.
		if start > 0 && buf[start-1] == '\n' {
			start--
			if start > 0 && buf[start-1] == '\r' {
				start--
			}
		}
		if end < len(buf) && buf[end] == '\r' {
			end++
		}
		if end < len(buf) && buf[end] == '\n' {
			end++
		}
		return Match{Kind: MatchFull, State: state, Start: start, End: end}
	}
}

// parseSentinelBody validates <exit>:<flag>:<cwd>. The cwd may contain
// the separator, so only the first two separators split fields.
func parseSentinelBody(body []byte) (PromptState, bool) {
	if bytes.ContainsRune(body, '\n') {
		return PromptState{}, false
	}

	first := bytes.IndexByte(body, fieldSep)
	if first < 0 {
		return PromptState{}, false
	}
	rest := body[first+1:]
	second := bytes.IndexByte(rest, fieldSep)
	if second < 0 {
		return PromptState{}, false
	}

	exitCode, err := strconv.Atoi(string(body[:first]))
	if err != nil {
		return PromptState{}, false
	}

	flag := string(rest[:second])
	if flag != "0" && flag != "1" {
		return PromptState{}, false
	}

	cwd := string(rest[second+1:])
	if !strings.HasPrefix(cwd, "/") {
		return PromptState{}, false
	}

	return PromptState{
		ExitCode:   exitCode,
		Running:    flag == "1",
		WorkingDir: cwd,
	}, true
}

// tailOpensSentinel reports whether buf ends with a proper prefix of
// the sentinel opener, meaning the next read may complete one.
func tailOpensSentinel(buf []byte) bool {
	for k := len(sentinelPrefix) - 1; k > 0; k-- {
		if bytes.HasSuffix(buf, []byte(sentinelPrefix[:k])) {
			return true
		}
	}
	return false
}
