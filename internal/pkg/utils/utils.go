// Package utils holds small helpers shared across the service packages.
package utils

import (
	"regexp"
	"strings"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of characters outside [a-z0-9]
// into a single hyphen. The result is safe for file names and URLs.
func Slugify(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, " "))
	slug := strings.Trim(nonSlug.ReplaceAllString(joined, "-"), "-")
	if slug == "" {
		return "document"
	}
	return slug
}

// DedupeEmails trims addresses, drops empty ones and removes case-insensitive
// duplicates. The first spelling of each address wins and order is preserved.
func DedupeEmails(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
