// Package strutil holds the token normalization shared by config parsing,
// wire decoding and the telnet command reader.
package strutil

import "strings"

// NormalizeUpper trims and upper-cases a case-insensitive token such as a
// telnet command.
func NormalizeUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// NormalizeLower trims and lower-cases a case-insensitive token such as a
// severity, surface mode or locale name.
func NormalizeLower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// FirstNonEmpty returns the first value that is not blank, trimmed.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
