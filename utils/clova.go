package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/intent"
	"github.com/Sori-Labs/sori-go-sdk/models"
)

// ExampleSource supplies previously confirmed commands similar to the
// current transcript, used to ground the context prompt.
type ExampleSource interface {
	Similar(ctx context.Context, transcript string, topK int) ([]string, error)
}

// ContextClassifier is the slower, culturally-aware remote stage. It talks
// to a HyperCLOVA-style chat endpoint through a local proxy and understands
// Korean colloquialisms and brand abbreviations the fast stage tends to
// miss. Reasoning-mode models sometimes return an empty content field with
// the answer buried in the thinking trace, so a keyword recovery pass backs
// up the structured parse.
type ContextClassifier struct {
	ProxyURL string
	APIKey   string
	Model    string
	Client   *http.Client

	// Memory, when set, contributes up to three similar past commands to
	// the prompt. Lookup failures are ignored.
	Memory ExampleSource
}

// NewContextClassifier builds the classifier from configuration.
func NewContextClassifier(cfg *models.Config) *ContextClassifier {
	return &ContextClassifier{
		ProxyURL: cfg.ContextProxyURL,
		APIKey:   cfg.ContextAPIKey,
		Model:    cfg.ContextModel,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ContextClassifier) Name() string { return "context" }

type clovaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type clovaRequest struct {
	Model       string         `json:"model"`
	Messages    []clovaMessage `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"maxTokens"`
}

type clovaResponse struct {
	Result struct {
		Message struct {
			Content         string `json:"content"`
			ThinkingContent string `json:"thinkingContent"`
		} `json:"message"`
	} `json:"result"`
}

const contextPromptTemplate = `You are an expert in Korean colloquial speech controlling a web page by voice.

Korean abbreviations you must expand to their canonical names:
- "아아" = 아메리카노 (iced americano)
- "뜨아" = 뜨거운 아메리카노
- "아바라" = 아이스 바닐라 라떼
- "맥날" = 맥도날드
- "스벅" = 스타벅스
- "배민" = 배달의민족
- "롯리" = 롯데리아
- "카톡" = 카카오톡
- "유툽" = 유튜브
- "넷플" = 넷플릭스

Intents: click, search, navigate, scroll, input, read, login, confirm, cancel, help, select, order, clear, unknown.

Visible screen elements (one per line):
%s
%s
Voice command: "%s"

Think about what the user culturally means, then respond with JSON only:
{"intent": string, "confidence": number between 0 and 1, "target": string with the canonical name, empty if none}`

// Classify sends the transcript through the proxy and parses the answer,
// recovering from the thinking trace when the content field comes back
// empty. Fails with *intent.NetworkError or *intent.ParseError.
func (c *ContextClassifier) Classify(ctx context.Context, transcript, screenElements string) (models.IntentResult, error) {
	prompt := fmt.Sprintf(contextPromptTemplate, screenBlock(screenElements), c.exampleBlock(ctx, transcript), transcript)

	body, err := json.Marshal(clovaRequest{
		Model: c.Model,
		Messages: []clovaMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return models.IntentResult{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.ProxyURL, bytes.NewBuffer(body))
	if err != nil {
		return models.IntentResult{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return models.IntentResult{}, &intent.NetworkError{Endpoint: c.ProxyURL, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.IntentResult{}, &intent.NetworkError{Endpoint: c.ProxyURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return models.IntentResult{}, &intent.NetworkError{
			Endpoint: c.ProxyURL,
			Err:      fmt.Errorf("proxy returned status %d: %s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var parsed clovaResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return models.IntentResult{}, &intent.ParseError{Raw: string(bodyBytes), Err: err}
	}

	content := StripCodeFence(parsed.Result.Message.Content)
	if content == "" {
		return c.recoverFromThinking(transcript, parsed.Result.Message.ThinkingContent), nil
	}

	var wire wireIntent
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return models.IntentResult{}, &intent.ParseError{Raw: content, Err: err}
	}
	tag := strings.ToLower(strings.TrimSpace(wire.Intent))
	if !models.ValidIntent(tag) {
		return models.IntentResult{}, &intent.ParseError{Raw: content, Err: fmt.Errorf("intent %q outside vocabulary", wire.Intent)}
	}

	return models.IntentResult{
		Intent:       tag,
		Confidence:   models.ClampConfidence(wire.Confidence),
		Target:       strings.TrimSpace(wire.Target),
		Source:       models.SourceContextRemote,
		OriginalText: transcript,
	}, nil
}

// exampleBlock renders up to three similar past commands, or nothing when
// no memory is wired or the lookup fails.
func (c *ContextClassifier) exampleBlock(ctx context.Context, transcript string) string {
	if c.Memory == nil {
		return ""
	}
	examples, err := c.Memory.Similar(ctx, transcript, 3)
	if err != nil {
		zap.L().Debug("Example memory lookup failed", zap.Error(err))
		return ""
	}
	if len(examples) == 0 {
		return ""
	}
	return "\nSimilar commands resolved before:\n- " + strings.Join(examples, "\n- ") + "\n"
}

// recoveryTopics map thinking-trace vocabulary to intents, first match
// wins. Every recovered intent carries the same reduced confidence.
var recoveryTopics = []struct {
	intent   string
	target   string
	keywords []string
}{
	{intent: models.IntentOrder, keywords: []string{"주문", "배달", "음식", "시켜", "결제"}},
	{intent: models.IntentSearch, keywords: []string{"검색", "찾아", "찾고", "search"}},
	{intent: models.IntentNavigate, keywords: []string{"이동", "사이트", "페이지", "navigate"}},
	{intent: models.IntentNavigate, target: "카카오톡", keywords: []string{"카카오톡", "카톡", "메시지", "메신저"}},
	{intent: models.IntentClick, keywords: []string{"클릭", "눌러", "버튼", "click"}},
	{intent: models.IntentScroll, keywords: []string{"스크롤", "내려", "올려", "scroll"}},
}

const recoveredConfidence = 0.7

// recoverFromThinking extracts an intent from a reasoning trace by topic
// keywords. When nothing matches it returns the deliberate low-confidence
// catch-all: treat the whole utterance as a search.
func (c *ContextClassifier) recoverFromThinking(transcript, thinking string) models.IntentResult {
	trace := strings.ToLower(thinking)
	for _, topic := range recoveryTopics {
		for _, kw := range topic.keywords {
			if strings.Contains(trace, kw) {
				zap.L().Debug("Recovered intent from thinking trace",
					zap.String("intent", topic.intent),
					zap.String("keyword", kw))
				return models.IntentResult{
					Intent:       topic.intent,
					Confidence:   recoveredConfidence,
					Target:       topic.target,
					Source:       models.SourceContextRemote,
					OriginalText: transcript,
				}
			}
		}
	}
	return models.IntentResult{
		Intent:       models.IntentSearch,
		Confidence:   0.6,
		Target:       transcript,
		Source:       models.SourceFallback,
		OriginalText: transcript,
	}
}
