// Package domain contains core concepts of the routing system.
// This file defines the Message value and body-parsing rules.
// Messages are immutable and produced by external chat documents.
package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Message represents one immutable chat entry.
// The router never mutates a Message; a trimmed command message is a
// distinct copy with only Body altered.
type Message struct {
	ID          uuid.UUID
	Body        string
	Sender      string
	Time        time.Time
	Mentions    []string
	Attachments []string
	RawTime     bool // duplicate echo marker set by the document layer
	Deleted     bool
}

// WithBody returns a copy of the message carrying body, all other fields
// identical by value.
func (m Message) WithBody(body string) Message {
	out := m
	out.Body = body
	out.Mentions = append([]string(nil), m.Mentions...)
	out.Attachments = append([]string(nil), m.Attachments...)
	return out
}

// FirstWord returns the first whitespace-delimited token of body,
// or "" when body is blank.
func FirstWord(body string) string {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// SplitCommand splits body into its first token and the remainder following
// the first run of whitespace. The remainder keeps its internal spacing and
// defaults to "" when the body holds a single token.
func SplitCommand(body string) (string, string) {
	trimmed := strings.TrimLeftFunc(body, unicode.IsSpace)
	idx := strings.IndexFunc(trimmed, unicode.IsSpace)
	if idx < 0 {
		return trimmed, ""
	}
	rest := strings.TrimLeftFunc(trimmed[idx:], unicode.IsSpace)
	return trimmed[:idx], rest
}
