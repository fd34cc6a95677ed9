package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAffirmative(t *testing.T) {
	for _, s := range []string{"네", "네!", "응 맞아", "그래 해줘", "오케이", "yes"} {
		assert.True(t, IsAffirmative(s), "%q should read as affirmative", s)
	}
	for _, s := range []string{"아니", "글쎄", "네이버 열어줘", "좋아하는 노래 틀어"} {
		assert.False(t, IsAffirmative(s), "%q should not read as affirmative", s)
	}
}

func TestIsCancellation(t *testing.T) {
	for _, s := range []string{"취소", "취소해", "아니야", "그만", "되돌려", "stop"} {
		assert.True(t, IsCancellation(s), "%q should read as cancellation", s)
	}
	for _, s := range []string{"네", "취소선 그어줘", "멈춰서서 봤어"} {
		assert.False(t, IsCancellation(s), "%q should not read as cancellation", s)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "아메리카노 주문해 줘", Normalize("  아메리카노 주문해 줘  "))
	assert.Equal(t, "open the cart", Normalize("Open The Cart"))
}

func TestStripPunctuation(t *testing.T) {
	assert.Equal(t, "장바구니 열어줘", stripPunctuation("장바구니 열어줘!"))
	assert.Equal(t, "네 알겠어", stripPunctuation("네, 알겠어..."))
}
