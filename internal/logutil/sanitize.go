package logutil

import "strings"

// SanitizeForLog strips newlines and control characters from user-provided
// strings (project names, dates, remote paths) so a crafted request cannot
// inject fake log or activity entries.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
