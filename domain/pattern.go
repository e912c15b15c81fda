package domain

import "regexp"

// CommandPattern matches slash-command names against a regular expression
// anchored at both ends. Compilation happens once at registration time.
// A pattern that fails to compile matches nothing; registration never errors.
type CommandPattern struct {
	Raw string
	re  *regexp.Regexp
}

// NewCommandPattern compiles raw with implicit anchoring. An invalid pattern
// yields a CommandPattern whose Matches always returns false.
func NewCommandPattern(raw string) CommandPattern {
	re, err := regexp.Compile("^(?:" + raw + ")$")
	if err != nil {
		return CommandPattern{Raw: raw}
	}
	return CommandPattern{Raw: raw, re: re}
}

// Matches reports whether command matches the full pattern.
func (p CommandPattern) Matches(command string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(command)
}
