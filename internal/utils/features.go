package utils

import (
	"sort"
	"strings"
)

// NormalizeFeatures splits, trims, sorts and deduplicates cargo feature names.
// Entries may themselves be comma or space separated ("a,b c"), as cargo accepts.
func NormalizeFeatures(features []string) []string {
	seen := make(map[string]struct{})
	normalized := make([]string, 0, len(features))

	for _, f := range features {
		for _, name := range strings.FieldsFunc(f, isFeatureSeparator) {
			if _, ok := seen[name]; ok {
				continue
			}

			seen[name] = struct{}{}
			normalized = append(normalized, name)
		}
	}

	sort.Strings(normalized)

	return normalized
}

func isFeatureSeparator(r rune) bool {
	return r == ',' || r == ' ' || r == '\t' || r == '\n'
}

// DedupStrings removes empty and repeated entries while preserving first-seen order
func DedupStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" {
			continue
		}

		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}
