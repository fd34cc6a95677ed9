package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Sori-Labs/sori-go-sdk/intent"
	"github.com/Sori-Labs/sori-go-sdk/models"
)

func newTestGateway(t *testing.T, cfg *models.Config) (*Gateway, *websocket.Conn) {
	t.Helper()

	restore := zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(restore)

	gateway := &Gateway{
		Config:  cfg,
		Matcher: intent.NewMatcher(),
		Cache:   intent.NewCache(cfg.CacheSize, nil, cfg.CacheTTL),
	}

	srv := httptest.NewServer(http.HandlerFunc(gateway.HandleVoiceSession))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return gateway, client
}

func stopSession(t *testing.T, client *websocket.Conn) {
	t.Helper()
	require.NoError(t, client.WriteJSON(models.WebSocketMessage{Type: "stop"}))
	confirmation := readUntilType(t, client, "stop_confirmation")
	assert.Equal(t, "stop_confirmation", confirmation.Type)
}

// readUntilType skips interleaved messages (acks, heartbeats) whose ordering
// against other session goroutines is not fixed.
func readUntilType(t *testing.T, client *websocket.Conn, msgType string) models.WebSocketMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, client)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("never received %q message", msgType)
	return models.WebSocketMessage{}
}

// TestVoiceSessionLifecycle drives a whole command through the socket: the
// greeting, a transcript resolved by the pattern table, the dispatched
// action, its acknowledgement, and the spoken feedback.
func TestVoiceSessionLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.AutoListen = true
	_, client := newTestGateway(t, cfg)

	greeting := readMessage(t, client)
	assert.Equal(t, "speak", greeting.Type)

	require.NoError(t, client.WriteJSON(models.WebSocketMessage{
		Type: "transcript",
		Data: map[string]interface{}{"text": "유튜브 열어 줘"},
	}))

	action := readUntilType(t, client, "action")
	payload, ok := action.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, models.IntentNavigate, payload["intent"])
	assert.Equal(t, "유튜브", payload["target"])
	actionID, _ := payload["action_id"].(string)
	require.NotEmpty(t, actionID)

	require.NoError(t, client.WriteJSON(models.WebSocketMessage{
		Type: "action_result",
		Data: map[string]interface{}{
			"action_id":  actionID,
			"success":    true,
			"url_before": "https://www.google.com",
			"feedback":   "유튜브로 이동했어요.",
		},
	}))

	feedback := readUntilType(t, client, "speak")
	assert.Equal(t, "유튜브로 이동했어요.", spokenText(t, feedback))

	require.NoError(t, client.WriteJSON(models.WebSocketMessage{Type: "ping"}))
	pong := readUntilType(t, client, "pong")
	assert.Equal(t, "pong", pong.Type)

	stopSession(t, client)
}

func TestConfigUpdateMessage(t *testing.T) {
	_, client := newTestGateway(t, testConfig())

	require.NoError(t, client.WriteJSON(models.WebSocketMessage{
		Type: "config",
		Data: map[string]interface{}{
			"debounce_window":   "1.5s",
			"execute_threshold": 0.8,
		},
	}))

	updated := readMessage(t, client)
	require.Equal(t, "config_updated", updated.Type)
	data, ok := updated.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1.5s", data["debounce_window"])
	threshold, _ := data["execute_threshold"].(float64)
	assert.InDelta(t, 0.8, threshold, 1e-9)

	stopSession(t, client)
}

// TestConfigUpdateDuringConversation hammers live tuning updates against a
// busy conversation loop. Config messages arrive on the read loop goroutine,
// so the swap has to hold up under the race detector while thresholds are
// being consulted.
func TestConfigUpdateDuringConversation(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{}
	session.Resolver = resolver

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates := make(chan struct{})
	go func() {
		defer close(updates)
		for i := 0; i < 50; i++ {
			session.handleConfigMessage(map[string]interface{}{
				"debounce_window":   "25ms",
				"execute_threshold": 0.75,
			})
		}
	}()

	for i := 0; i < 50; i++ {
		session.processTranscript(models.Transcript{Text: fmt.Sprintf("메뉴 %d번 읽어 줘", i)})
	}
	<-updates

	assert.Equal(t, 50, resolver.callCount())
	cfg := session.Config()
	assert.Equal(t, 25*time.Millisecond, cfg.DebounceWindow)
	assert.InDelta(t, 0.75, cfg.ExecuteThreshold, 1e-9)

	session.Stop()
	<-drained
}

func TestRecognitionErrorSpoken(t *testing.T) {
	_, client := newTestGateway(t, testConfig())

	require.NoError(t, client.WriteJSON(models.WebSocketMessage{
		Type: "recognition_error",
		Data: map[string]interface{}{"code": "not-allowed", "message": "permission denied"},
	}))

	hint := spokenText(t, readMessage(t, client))
	assert.Contains(t, hint, "마이크 권한")

	stopSession(t, client)
}

func TestHealthCheckHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(HealthCheckHandler))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
