package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/intent"
	"github.com/Sori-Labs/sori-go-sdk/models"
)

// maxScreenLines caps how much of the element summary is embedded in a
// classifier prompt.
const maxScreenLines = 20

// wireIntent is the JSON shape both remote classifiers ask the model for.
type wireIntent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Target     string  `json:"target"`
}

// FastClassifier is the latency-optimized remote stage: a single
// chat-completion call with a compact prompt. The resolver imposes its time
// budget from outside; the classifier itself never retries.
type FastClassifier struct {
	client *openai.Client
	model  string
}

// NewFastClassifier builds the classifier from configuration. A custom base
// URL routes the call to any OpenAI-compatible endpoint.
func NewFastClassifier(cfg *models.Config) *FastClassifier {
	c := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		c.BaseURL = cfg.OpenAIBaseURL
	}
	return &FastClassifier{
		client: openai.NewClientWithConfig(c),
		model:  cfg.FastModel,
	}
}

func (f *FastClassifier) Name() string { return "fast" }

const fastSystemPrompt = `You classify Korean voice commands for a web-page voice assistant. Respond with strict JSON only, no prose.`

const fastPromptTemplate = `Classify the voice command into exactly one intent from this list:
click, search, navigate, scroll, input, read, login, confirm, cancel, help, select, order, clear, unknown.

Visible screen elements (one per line):
%s

Voice command: "%s"

Respond with JSON only:
{"intent": string, "confidence": number between 0 and 1, "target": string naming the element or query, empty if none}`

// Classify sends one chat completion and parses the strict-JSON answer.
// Fails with *intent.NetworkError or *intent.ParseError; never falls back
// on its own.
func (f *FastClassifier) Classify(ctx context.Context, transcript, screenElements string) (models.IntentResult, error) {
	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       f.model,
		Temperature: 0,
		MaxTokens:   200,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fastSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(fastPromptTemplate, screenBlock(screenElements), transcript)},
		},
	})
	if err != nil {
		return models.IntentResult{}, &intent.NetworkError{Endpoint: "openai/chat-completions", Err: err}
	}
	if len(resp.Choices) == 0 {
		return models.IntentResult{}, &intent.ParseError{Err: fmt.Errorf("no choices in response")}
	}

	content := StripCodeFence(resp.Choices[0].Message.Content)
	zap.L().Debug("Fast classifier response", zap.String("content", content))

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
		Source:       models.SourceFastRemote,
		OriginalText: transcript,
	}, nil
}

// screenBlock trims the element summary for prompt embedding.
func screenBlock(screen string) string {
	screen = strings.TrimSpace(screen)
	if screen == "" {
		return "(none reported)"
	}
	lines := strings.Split(screen, "\n")
	if len(lines) > maxScreenLines {
		lines = lines[:maxScreenLines]
	}
	return strings.Join(lines, "\n")
}
