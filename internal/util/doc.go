// Package util provides small helpers shared by the link service packages.
//
// Key utilities:
//   - SafeTruncate: bounds untrusted strings (provider error bodies) before logging
//   - NormalizeURL: trims trailing slashes from configured base URLs
//   - JoinURL: appends a path to a normalized base URL
package util
