package models

import "unicode/utf8"

// Head returns the longest prefix of s that fits in n bytes without
// splitting a UTF-8 sequence.
func Head(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Tail returns the longest suffix of s that fits in n bytes without
// splitting a UTF-8 sequence.
func Tail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// Truncate shortens s to at most max bytes, ending in "..." when cut.
func Truncate(s string, max int) string {
	return TruncateWith(s, max, "...")
}

// TruncateWith shortens s to at most max bytes, ending in marker when cut.
// If marker does not fit, s is cut without it.
func TruncateWith(s string, max int, marker string) string {
	if len(s) <= max {
		return s
	}
	keep := max - len(marker)
	if keep <= 0 {
		return Head(s, max)
	}
	return Head(s, keep) + marker
}
