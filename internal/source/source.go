// Package source holds helpers shared by catalog connectors.
package source

import (
	"context"
	"strings"
)

// MatchAll is the wildcard criteria text.
const MatchAll = "*"

// Pinger is implemented by connectors that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Window converts a 1-based start and page size into slice bounds over n
// records. pageSize 0 selects everything from start.
func Window(n, start, pageSize int) (from, to int) {
	if start < 1 {
		start = 1
	}
	from = min(start-1, n)
	to = n
	if pageSize > 0 {
		to = min(from+pageSize, n)
	}
	return from, to
}

// MatchText reports whether text occurs in any of fields, case-insensitively.
// Empty text and the wildcard match everything.
func MatchText(text string, fields ...string) bool {
	text = strings.TrimSpace(text)
	if text == "" || text == MatchAll {
		return true
	}
	needle := strings.ToLower(text)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// MatchAttributes reports whether have carries every pair in want.
func MatchAttributes(want, have map[string]string) bool {
	for k, v := range want {
		if got, ok := have[k]; !ok || got != v {
			return false
		}
	}
	return true
}
