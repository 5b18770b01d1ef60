package config

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// HideFilter matches "client/port" paths against the gitignore-style
// patterns in [view] hide. A nil filter hides nothing.
type HideFilter struct {
	gi *ignore.GitIgnore
}

// NewHideFilter compiles patterns. It returns nil when there are none.
func NewHideFilter(patterns []string) *HideFilter {
	if len(patterns) == 0 {
		return nil
	}

	return &HideFilter{gi: ignore.CompileIgnoreLines(patterns...)}
}

// HiddenClient reports whether a whole client is hidden. Clients are
// matched as directories so a "name/" pattern hides them.
func (f *HideFilter) HiddenClient(client string) bool {
	if f == nil {
		return false
	}

	return f.gi.MatchesPath(escapeSegment(client) + "/")
}

// HiddenPort reports whether a port is hidden, either directly or through
// its client.
func (f *HideFilter) HiddenPort(client, port string) bool {
	if f == nil {
		return false
	}

	if f.HiddenClient(client) {
		return true
	}

	return f.gi.MatchesPath(escapeSegment(client) + "/" + escapeSegment(port))
}

// escapeSegment keeps names containing "/" from being read as nested paths.
func escapeSegment(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}
