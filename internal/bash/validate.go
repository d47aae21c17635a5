package bash

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Validate classifies command as a single executable statement or
// rejects it before it reaches a terminal.
//
// One top-level statement is accepted, which covers pipelines, && and
// || chains, a trailing background marker, heredocs, command
// substitution, subshells, and quoting. A plain separator between
// top-level commands ("a; b") produces multiple statements and is
// rejected: the protocol promises one observation per logical command,
// and a smuggled second command would execute unaccounted. A separator
// nested inside an accepted construct (subshell, brace group, command
// substitution, heredoc body) adds no top-level statement and passes.
func Validate(command string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return &ParseError{Err: err}
	}

	if len(file.Stmts) > 1 {
		return &MultiStatementError{Statements: len(file.Stmts)}
	}

	return nil
}
