package backend

import "strings"

// matchMimetype supports exact matches, a major-family wildcard ("audio/*"),
// and the universal wildcards ("*/*", "*").
func matchMimetype(pattern, mimeType string) bool {
	if pattern == "*" || pattern == "*/*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(mimeType, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == mimeType
}

func matchAnyMimetype(patterns []string, mimeType string) bool {
	for _, p := range patterns {
		if matchMimetype(p, mimeType) {
			return true
		}
	}
	return false
}
