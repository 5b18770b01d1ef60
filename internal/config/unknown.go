package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSectionKeys maps each top-level section to the keys it accepts.
var knownSectionKeys = map[string][]string{
	"bus":      {"url", "call_timeout", "reconnect_interval"},
	"presence": {"poll_interval"},
	"logging":  {"log_level", "log_format"},
	"journal":  {"enabled", "path", "retention"},
	"metrics":  {"listen"},
	"view":     {"hide", "color"},
}

// knownSections is the sorted list of section names for Levenshtein
// matching. Sorted for deterministic suggestions on equal distances.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownSectionKeys))
	for k := range knownSectionKeys {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seenSections := make(map[string]bool)

	for _, key := range undecoded {
		if len(key) == 0 {
			continue
		}

		// An unknown section reports once, not once per key inside it.
		if _, known := knownSectionKeys[key[0]]; !known {
			if seenSections[key[0]] {
				continue
			}

			seenSections[key[0]] = true
		}

		if err := buildKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for one undecoded key,
// optionally suggesting the closest known name.
func buildKeyError(key toml.Key) error {
	section := key[0]

	fields, ok := knownSectionKeys[section]
	if !ok {
		return unknownKeyError(fmt.Sprintf("section [%s]", section), section, knownSections)
	}

	if len(key) < 2 {
		return fmt.Errorf("config key %q must be a table", section)
	}

	return unknownKeyError(fmt.Sprintf("key %q in [%s]", key[1], section), key[1], sortedCopy(fields))
}

func unknownKeyError(what, name string, known []string) error {
	if suggestion := closestMatch(name, known); suggestion != "" {
		return fmt.Errorf("unknown config %s, did you mean %q?", what, suggestion)
	}

	return fmt.Errorf("unknown config %s", what)
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)

	return out
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(strings.ToLower(unknown), k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
