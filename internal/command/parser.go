package command

import "strings"

// ParseResult holds the parsed command name and arguments from a text line.
type ParseResult struct {
	// Command is the first word of the input, lowercased.
	Command string
	// Args are the remaining whitespace-separated words.
	Args []string
}

// Parse splits a text line into a command and arguments.
//
// Postcondition: Returns a ParseResult. If line is blank, Command is empty.
func Parse(line string) ParseResult {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ParseResult{}
	}
	res := ParseResult{Command: strings.ToLower(fields[0])}
	if len(fields) > 1 {
		res.Args = fields[1:]
	}
	return res
}

// ParsePrefixed parses line as a command if, after trimming, it begins with prefix.
//
// Postcondition: Returns (result, true) for prefixed input, or (zero, false) otherwise.
// A bare prefix yields (ParseResult{}, true).
func ParsePrefixed(line, prefix string) (ParseResult, bool) {
	line = strings.TrimSpace(line)
	if prefix == "" || !strings.HasPrefix(line, prefix) {
		return ParseResult{}, false
	}
	return Parse(line[len(prefix):]), true
}
