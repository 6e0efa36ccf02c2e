package command

import "strings"

// DialogMarker prefixes the header of a dialog-answer packet.
const DialogMarker = '#'

// DialogSeparator separates the fields of a dialog-answer packet.
const DialogSeparator = "^"

// ParseResult holds the header and raw body split from one inbound line.
type ParseResult struct {
	// Header is the first token, matched case-sensitively.
	Header string
	// RawArgs is the body after the header, inner spacing preserved.
	RawArgs string
	// Dialog is true when the line was a dialog answer that was normalized.
	Dialog bool
}

// Parse splits a line into header and body. Dialog answers such as
// "#pjoin^3^42" have their separators replaced with spaces first, so the
// result is header "#pjoin" with body "3 42".
//
// Postcondition: Returns a ParseResult. If line is blank, Header is empty.
func Parse(line string) ParseResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{}
	}

	dialog := line[0] == DialogMarker
	if dialog {
		line = strings.ReplaceAll(line, DialogSeparator, " ")
	}

	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return ParseResult{Header: line, Dialog: dialog}
	}
	return ParseResult{
		Header:  line[:idx],
		RawArgs: strings.TrimSpace(line[idx+1:]),
		Dialog:  dialog,
	}
}
