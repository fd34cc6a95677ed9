package voice

import "strings"

// affirmativeWords answer a pending yes/no confirmation positively.
var affirmativeWords = []string{
	"네", "네네", "예", "응", "어", "그래", "그래요", "좋아", "좋아요",
	"맞아", "맞아요", "해줘", "해주세요", "진행", "진행해", "확인",
	"오케이", "ok", "okay", "yes",
}

// cancellationWords either answer a pending confirmation negatively or, on a
// fresh utterance, trigger the undo short-circuit.
var cancellationWords = []string{
	"취소", "취소해", "아니", "아니야", "아니요", "아니오", "안돼",
	"그만", "멈춰", "중지", "되돌려", "되돌리기", "원래대로",
	"cancel", "no", "stop", "undo",
}

// IsAffirmative reports whether the normalized transcript is a positive
// answer to a yes/no question. Matching is token-exact so that e.g. "네비게이션"
// is not mistaken for "네".
func IsAffirmative(transcript string) bool {
	return containsToken(transcript, affirmativeWords)
}

// IsCancellation reports whether the normalized transcript is a cancellation
// or undo request.
func IsCancellation(transcript string) bool {
	return containsToken(transcript, cancellationWords)
}

func containsToken(transcript string, words []string) bool {
	for _, tok := range strings.Fields(stripPunctuation(transcript)) {
		for _, w := range words {
			if tok == w {
				return true
			}
		}
	}
	return false
}
