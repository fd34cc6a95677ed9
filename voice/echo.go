package voice

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// EchoWindow is the hard upper bound on how long the guard stays active
// after synthesized speech starts. It defends against a lost "speech ended"
// event: even if OnSpeechEnd never fires, the guard expires on its own.
const EchoWindow = 5 * time.Second

// maxGuardKeywords bounds how many content words are kept per spoken text.
const maxGuardKeywords = 3

// particleSuffixes are common Korean grammatical particles and verb endings
// stripped from the tail of each token when deriving guard keywords. Sorted
// longest-first at init so compound endings win over their own suffixes.
var particleSuffixes = []string{
	"했습니다", "였습니다", "습니다", "입니다", "합니다", "됩니다",
	"해주세요", "하세요", "세요", "네요", "지요", "어요", "아요",
	"해요", "에요", "예요", "에서", "에게", "한테", "으로", "부터",
	"까지", "처럼", "보다", "라고", "하고", "마다", "든지",
	"은", "는", "이", "가", "을", "를", "에", "의", "와", "과",
	"도", "만", "로", "죠", "요",
}

func init() {
	sort.Slice(particleSuffixes, func(i, j int) bool {
		return utf8.RuneCountInString(particleSuffixes[i]) > utf8.RuneCountInString(particleSuffixes[j])
	})
}

// EchoGuard tracks the assistant's own synthesized speech so that transcripts
// re-captured from the speaker can be filtered out. A time window alone is not
// enough (the user may genuinely speak while the assistant talks), so lexical
// overlap with the spoken text is required as well.
type EchoGuard struct {
	mu        sync.Mutex
	active    bool
	keywords  []string
	startedAt time.Time

	now func() time.Time
}

// NewEchoGuard returns an inactive guard.
func NewEchoGuard() *EchoGuard {
	return &EchoGuard{now: time.Now}
}

// OnSpeechStart activates the guard with keywords derived from the text about
// to be synthesized.
func (g *EchoGuard) OnSpeechStart(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keywords = GuardKeywords(text)
	g.active = true
	g.startedAt = g.now()
}

// OnSpeechEnd deactivates the guard unconditionally.
func (g *EchoGuard) OnSpeechEnd() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.keywords = nil
}

// Active reports whether the guard is currently armed.
func (g *EchoGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// IsEcho reports whether candidate looks like a re-captured copy of the
// assistant's own speech. A single keyword hit is enough only when a single
// keyword exists; otherwise at least two must match, which keeps short
// unrelated utterances that share one common word from being swallowed.
// Expiry of the window deactivates the guard as a side effect.
func (g *EchoGuard) IsEcho(candidate string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return false
	}
	if g.now().Sub(g.startedAt) > EchoWindow {
		g.active = false
		g.keywords = nil
		return false
	}
	if len(g.keywords) == 0 {
		return false
	}

	lower := strings.ToLower(candidate)
	hits := 0
	for _, kw := range g.keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits >= min(2, len(g.keywords))
}

// GuardKeywords derives the content words of a spoken text: punctuation is
// stripped, trailing particles/endings are removed from each token, tokens
// shorter than two runes are dropped, and at most three survivors are kept.
func GuardKeywords(text string) []string {
	var kws []string
	for _, tok := range strings.Fields(stripPunctuation(strings.ToLower(text))) {
		tok = stripParticles(tok)
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		kws = append(kws, tok)
		if len(kws) == maxGuardKeywords {
			break
		}
	}
	return kws
}

// stripParticles removes up to two trailing particle/ending suffixes from a
// token. A suffix is only stripped when at least two runes remain, so short
// content words are not eaten down to a single syllable.
func stripParticles(tok string) string {
	for i := 0; i < 2; i++ {
		stripped := false
		for _, suf := range particleSuffixes {
			if !strings.HasSuffix(tok, suf) {
				continue
			}
			rest := strings.TrimSuffix(tok, suf)
			if utf8.RuneCountInString(rest) < 2 {
				continue
			}
			tok = rest
			stripped = true
			break
		}
		if !stripped {
			break
		}
	}
	return tok
}
