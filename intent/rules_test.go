package intent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRuleFile(t *testing.T) {
	path := writeRules(t, `
rules:
  - name: cart
    intent: click
    confidence: 0.9
    keywords: ["장바구니", "카트"]
  - intent: navigate
    confidence: 0.95
    keywords: ["홈으로"]
    target: "홈"
`)

	rules, err := LoadRuleFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "cart", rules[0].Name)
	assert.Equal(t, models.IntentClick, rules[0].Intent)
	assert.Equal(t, []string{"장바구니", "카트"}, rules[0].Keywords)

	assert.Equal(t, "custom-1", rules[1].Name, "unnamed rules get a positional name")
	assert.Equal(t, "홈", rules[1].Target)
}

func TestLoadRuleFileRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown intent", "rules:\n  - intent: teleport\n    confidence: 0.9\n    keywords: [\"순간이동\"]\n"},
		{"no keywords", "rules:\n  - intent: click\n    confidence: 0.9\n"},
		{"confidence out of range", "rules:\n  - intent: click\n    confidence: 1.5\n    keywords: [\"클릭\"]\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRuleFile(writeRules(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRuleFileMissing(t *testing.T) {
	_, err := LoadRuleFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
