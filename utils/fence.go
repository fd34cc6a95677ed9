package utils

import "strings"

// StripCodeFence removes a Markdown code fence (plain or with a language
// tag) wrapping s. Chat models wrap JSON answers in fences no matter how
// firmly the prompt forbids it, so every classifier response goes through
// this before parsing.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
