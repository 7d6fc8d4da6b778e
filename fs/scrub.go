package fs

import (
	"regexp"
	"strings"
)

// sensitiveKeyPattern matches "key=value"/"key: value" pairs whose key
// looks like a credential, so a wrapped transport error (e.g. an SFTP
// dial failure echoing its connection string) never leaks one verbatim.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)\b(\w*(?:password|pass|secret)\w*)\s*[:=]\s*\S+`)

// userinfoPattern matches the "user:pass@" userinfo component of a URL.
var userinfoPattern = regexp.MustCompile(`://[^/@\s]+:[^/@\s]+@`)

// Scrub redacts credential-shaped substrings from s before it is
// interpolated into an *Error message (spec §7: "no credential
// material appears in error messages"). It is deliberately pattern-based
// rather than a full parse, since the input is free-form text from an
// underlying transport error, not a structured value.
func Scrub(s string) string {
	s = sensitiveKeyPattern.ReplaceAllStringFunc(s, func(m string) string {
		i := strings.IndexAny(m, ":=")
		return m[:i+1] + " ***"
	})
	return userinfoPattern.ReplaceAllString(s, "://***@")
}

// isSensitiveKey reports whether an Environment key names credential
// material, per the "password"/"pass"/"secret" vocabulary SPEC_FULL.md
// calls out.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "pass") || strings.Contains(lower, "secret")
}

// scrubValue returns value unchanged unless key names credential
// material, in which case it is redacted before being echoed into an
// error message (e.g. Environment.Int/Bool on an unparseable value).
func scrubValue(key, value string) string {
	if isSensitiveKey(key) {
		return "***"
	}
	return value
}
