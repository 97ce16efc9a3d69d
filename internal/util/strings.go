package util

import "strings"

// SafeTruncate returns at most maxLen bytes of s. A negative maxLen yields "".
//
// It is used when logging response bodies from upstream services, which are
// untrusted and may be arbitrarily large.
//
//	SafeTruncate("very-long-token-abc123", 8) // "very-lon"
//	SafeTruncate("short", 10)                  // "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL removes trailing slashes so that base URLs compose predictably.
//
//	NormalizeURL("https://app.example.com/")   // "https://app.example.com"
//	NormalizeURL("https://app.example.com///") // "https://app.example.com"
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}

// JoinURL joins a base URL and an absolute path with exactly one slash.
func JoinURL(base, path string) string {
	return NormalizeURL(base) + "/" + strings.TrimLeft(path, "/")
}
