// Package intent turns Korean voice transcripts into actionable intents.
// Resolution chains a static pattern matcher, a latency-optimized remote
// classifier and a context-aware remote classifier under a fallback policy
// that always terminates with some answer, backed by a two-level cache.
package intent

import (
	"strings"
	"sync"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

// SubstringDiscount is applied to a rule's confidence when its keyword only
// matched as a substring instead of a whole token.
const SubstringDiscount = 0.8

// unknownConfidence is reported when no rule matches at all.
const unknownConfidence = 0.1

// Rule maps utterance keywords to an intent. Rules are evaluated in order;
// the first match wins, so specific rules (the abbreviation dictionary)
// must precede generic ones.
type Rule struct {
	Name       string   `yaml:"name"`
	Intent     string   `yaml:"intent"`
	Confidence float64  `yaml:"confidence"`
	Keywords   []string `yaml:"keywords"`

	// Target, when set, is returned verbatim: abbreviation rules use it to
	// expand colloquialisms to their canonical noun.
	Target string `yaml:"target"`

	// CaptureTarget derives the target from what remains of the utterance
	// after the matched keyword and filler words are removed.
	CaptureTarget bool `yaml:"capture_target"`
}

// fillerWords are dropped when deriving a capture target from an utterance.
var fillerWords = map[string]bool{
	"주세요": true, "해주세요": true, "해줘": true, "해줄래": true,
	"줘": true, "해": true, "좀": true, "요": true, "제발": true,
}

// builtinRules returns a fresh copy of the default rule table. The
// abbreviation dictionary sits on top: a colloquial token must expand to
// its canonical form before any generic keyword has a chance to fire.
func builtinRules() []Rule {
	return []Rule{
		// Colloquial abbreviations. Expansion happens here, not in the
		// remote classifiers, so these work offline too.
		{Name: "abbr-iced-americano", Intent: models.IntentSelect, Confidence: 0.95, Keywords: []string{"아아"}, Target: "아메리카노"},
		{Name: "abbr-hot-americano", Intent: models.IntentSelect, Confidence: 0.95, Keywords: []string{"뜨아"}, Target: "뜨거운 아메리카노"},
		{Name: "abbr-iced-vanilla-latte", Intent: models.IntentSelect, Confidence: 0.95, Keywords: []string{"아바라"}, Target: "아이스 바닐라 라떼"},
		{Name: "abbr-mcdonalds", Intent: models.IntentNavigate, Confidence: 0.95, Keywords: []string{"맥날"}, Target: "맥도날드"},
		{Name: "abbr-starbucks", Intent: models.IntentNavigate, Confidence: 0.95, Keywords: []string{"스벅"}, Target: "스타벅스"},
		{Name: "abbr-baemin", Intent: models.IntentNavigate, Confidence: 0.95, Keywords: []string{"배민"}, Target: "배달의민족"},
		{Name: "abbr-lotteria", Intent: models.IntentNavigate, Confidence: 0.95, Keywords: []string{"롯리"}, Target: "롯데리아"},
		{Name: "abbr-kakaotalk", Intent: models.IntentNavigate, Confidence: 0.95, Keywords: []string{"카톡"}, Target: "카카오톡"},
		{Name: "abbr-youtube", Intent: models.IntentNavigate, Confidence: 0.95, Keywords: []string{"유툽", "유튭"}, Target: "유튜브"},
		{Name: "abbr-netflix", Intent: models.IntentNavigate, Confidence: 0.95, Keywords: []string{"넷플"}, Target: "넷플릭스"},

		// Generic command keywords, strongest signals first.
		{Name: "order", Intent: models.IntentOrder, Confidence: 0.9, Keywords: []string{"주문", "주문해", "시켜", "시켜줘", "배달"}, CaptureTarget: true},
		{Name: "login", Intent: models.IntentLogin, Confidence: 0.92, Keywords: []string{"로그인"}},
		{Name: "cancel", Intent: models.IntentCancel, Confidence: 0.9, Keywords: []string{"취소", "그만", "멈춰", "중지"}},
		{Name: "help", Intent: models.IntentHelp, Confidence: 0.9, Keywords: []string{"도움말", "도와줘", "도움"}},
		{Name: "click", Intent: models.IntentClick, Confidence: 0.9, Keywords: []string{"클릭", "눌러", "눌러줘", "버튼"}, CaptureTarget: true},
		{Name: "scroll-down", Intent: models.IntentScroll, Confidence: 0.9, Keywords: []string{"내려", "내려줘", "아래로", "밑으로", "스크롤"}, Target: "down"},
		{Name: "scroll-up", Intent: models.IntentScroll, Confidence: 0.9, Keywords: []string{"올려", "올려줘", "위로"}, Target: "up"},
		{Name: "search", Intent: models.IntentSearch, Confidence: 0.85, Keywords: []string{"검색", "검색해", "찾아", "찾아줘", "찾기"}, CaptureTarget: true},
		{Name: "navigate", Intent: models.IntentNavigate, Confidence: 0.85, Keywords: []string{"이동", "이동해", "가줘", "갈래", "열어", "열어줘", "접속"}, CaptureTarget: true},
		{Name: "select", Intent: models.IntentSelect, Confidence: 0.85, Keywords: []string{"선택", "선택해", "골라", "골라줘"}, CaptureTarget: true},
		{Name: "input", Intent: models.IntentInput, Confidence: 0.85, Keywords: []string{"입력", "입력해", "써줘", "적어", "적어줘"}, CaptureTarget: true},
		{Name: "clear", Intent: models.IntentClear, Confidence: 0.85, Keywords: []string{"지워", "삭제", "초기화", "비워"}, CaptureTarget: true},
		{Name: "confirm", Intent: models.IntentConfirm, Confidence: 0.85, Keywords: []string{"확인", "확인해"}},
		{Name: "read", Intent: models.IntentRead, Confidence: 0.8, Keywords: []string{"읽어", "읽어줘", "알려줘", "설명해"}, CaptureTarget: true},
	}
}

// Matcher is the offline stage of the pipeline: a deterministic, ordered
// rule table. It is shared across sessions and safe for concurrent use;
// Reload swaps the table atomically so a rules-file change reaches every
// session without restarts.
type Matcher struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewMatcher returns a matcher loaded with the builtin rule table.
func NewMatcher() *Matcher {
	return &Matcher{rules: builtinRules()}
}

// Reload replaces the rule table with overrides prepended to the builtin
// rules. Overrides win because first match takes precedence.
func (m *Matcher) Reload(overrides []Rule) {
	rules := make([]Rule, 0, len(overrides)+24)
	rules = append(rules, overrides...)
	rules = append(rules, builtinRules()...)

	m.mu.Lock()
	m.rules = rules
	m.mu.Unlock()
}

// Rules returns a snapshot of the active rule table.
func (m *Matcher) Rules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Match maps a normalized transcript to an intent. Pure lookup, no I/O,
// never fails: the worst case is unknown at low confidence. Exact token
// matches are tried across the whole table before any substring match, so
// weaker evidence never shadows stronger evidence from a later rule.
func (m *Matcher) Match(transcript string) models.IntentResult {
	m.mu.RLock()
	rules := m.rules
	m.mu.RUnlock()

	tokens := strings.Fields(transcript)

	for _, r := range rules {
		for _, kw := range r.Keywords {
			for _, tok := range tokens {
				if tok == kw {
					return r.result(transcript, kw, r.Confidence)
				}
			}
		}
	}

	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(transcript, kw) {
				return r.result(transcript, kw, r.Confidence*SubstringDiscount)
			}
		}
	}

	return models.IntentResult{
		Intent:       models.IntentUnknown,
		Confidence:   unknownConfidence,
		Source:       models.SourcePattern,
		OriginalText: transcript,
	}
}

func (r Rule) result(transcript, keyword string, confidence float64) models.IntentResult {
	target := r.Target
	if target == "" && r.CaptureTarget {
		target = captureTarget(transcript, keyword)
	}
	return models.IntentResult{
		Intent:       r.Intent,
		Confidence:   models.ClampConfidence(confidence),
		Target:       target,
		Source:       models.SourcePattern,
		OriginalText: transcript,
	}
}

// captureTarget strips the matched keyword and filler words from the
// utterance; whatever remains names the thing the command acts on.
func captureTarget(transcript, keyword string) string {
	rest := strings.Replace(transcript, keyword, " ", 1)
	var kept []string
	for _, tok := range strings.Fields(rest) {
		if fillerWords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
