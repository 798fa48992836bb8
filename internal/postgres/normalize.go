package postgres

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Single-quoted literals, with '' escapes handled inside the literal.
	stringLitRe = regexp.MustCompile(`'(?:''|[^'])*'`)
	intLitRe    = regexp.MustCompile(`\b\d+\b`)
)

// NormalizeQuery collapses whitespace and masks literal values so that
// textually different invocations of the same statement compare equal.
// It is deliberately regex-level rather than a SQL parser: input coming
// back from pg_stat_statements can be truncated mid-token and the
// normalizer must never fail on it. The result is idempotent.
func NormalizeQuery(query string) string {
	compact := strings.TrimSpace(whitespaceRe.ReplaceAllString(query, " "))
	compact = stringLitRe.ReplaceAllString(compact, "?")
	return intLitRe.ReplaceAllString(compact, "?")
}
