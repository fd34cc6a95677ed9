package utils

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sori-Labs/sori-go-sdk/intent"
	"github.com/Sori-Labs/sori-go-sdk/models"
)

func fastClassifierFor(srv *httptest.Server) *FastClassifier {
	return NewFastClassifier(&models.Config{
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: srv.URL + "/v1",
		FastModel:     "gpt-4o-mini",
	})
}

func chatCompletionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestFastClassifierParsesFencedJSON(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPrompt = string(body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody("```json\n{\"intent\":\"navigate\",\"confidence\":0.9,\"target\":\"맥도날드\"}\n```"))
	}))
	defer srv.Close()

	res, err := fastClassifierFor(srv).Classify(context.Background(), "맥날 갈래", "button: 로그인")
	require.NoError(t, err)

	assert.Equal(t, models.IntentNavigate, res.Intent)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, "맥도날드", res.Target)
	assert.Equal(t, models.SourceFastRemote, res.Source)
	assert.Equal(t, "맥날 갈래", res.OriginalText)

	assert.Contains(t, gotPrompt, "맥날 갈래", "prompt must embed the transcript")
	assert.Contains(t, gotPrompt, "로그인", "prompt must embed the screen elements")
}

func TestFastClassifierRejectsUnknownIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody(`{"intent":"teleport","confidence":0.9,"target":""}`))
	}))
	defer srv.Close()

	_, err := fastClassifierFor(srv).Classify(context.Background(), "순간이동", "")
	var parseErr *intent.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestFastClassifierRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody("I think the user wants to click something."))
	}))
	defer srv.Close()

	_, err := fastClassifierFor(srv).Classify(context.Background(), "클릭", "")
	var parseErr *intent.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestFastClassifierNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := fastClassifierFor(srv).Classify(context.Background(), "클릭", "")
	var netErr *intent.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.NotNil(t, netErr.Err)
}
