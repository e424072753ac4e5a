// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseID parses a record id argument.
func ParseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id '%s': must be a positive integer", arg)
	}
	return id, nil
}

// ParseAssignments turns FIELD=VALUE arguments into an update map.
// Only the first '=' separates; the value may be empty. A field given
// twice is rejected.
func ParseAssignments(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one FIELD=VALUE is required")
	}

	changes := make(map[string]string, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid assignment '%s': expected FIELD=VALUE", arg)
		}
		if _, dup := changes[field]; dup {
			return nil, fmt.Errorf("field '%s' given more than once", field)
		}
		changes[field] = value
	}
	return changes, nil
}

// MatchPrefix returns the names starting with prefix, case-insensitively,
// in their original order.
func MatchPrefix(prefix string, names []string) []string {
	lower := strings.ToLower(prefix)
	var matches []string
	for _, name := range names {
		if strings.HasPrefix(strings.ToLower(name), lower) {
			matches = append(matches, name)
		}
	}
	return matches
}

// MapKeys extracts keys from a map and returns them sorted.
func MapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
