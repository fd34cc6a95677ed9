// Package voice holds the speech-side heuristics of the gateway: transcript
// normalization, the affirmative/cancellation keyword lists, and the
// self-echo suppressor that keeps the assistant from hearing its own
// synthesized speech.
package voice

import (
	"strings"
	"unicode"
)

// Normalize lowercases and trims an utterance. Every cache key and every
// keyword check operates on the normalized form.
func Normalize(transcript string) string {
	return strings.ToLower(strings.TrimSpace(transcript))
}

// stripPunctuation removes punctuation and symbol runes, keeping letters,
// digits and whitespace. Hangul passes through unchanged.
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
