package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow connections from any origin
	},
}

// HandleVoiceSession upgrades the request and runs one voice session until
// the client disconnects or asks to stop.
func (g *Gateway) HandleVoiceSession(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Error("Failed to upgrade to websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	session := NewVoiceSession(sessionID, conn, g)
	session.Logger.Info("New voice session started")

	go session.ConversationLoop()
	go session.handleSessionOrchestrator()

	if session.Config().AutoListen {
		session.Say("안녕하세요! 무엇을 도와드릴까요?")
	}

	session.listenWebsocketMessages(conn)

	session.Logger.Info("Voice session ended")
	session.Stop()
}

func (session *VoiceSession) listenWebsocketMessages(conn *websocket.Conn) {
	for {
		var msg models.WebSocketMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				session.Logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case "transcript":
			session.handleTranscriptMessage(msg.Data)
		case "audio_data":
			session.handleAudioData(msg.Data)
		case "screen_elements":
			session.handleScreenElements(msg.Data)
		case "speech_ended":
			session.Logger.Debug("Client finished speech playback")
			session.Guard.OnSpeechEnd()
		case "speech_error":
			session.Logger.Warn("Client speech playback failed")
			session.Guard.OnSpeechEnd()
		case "recognition_error":
			session.handleRecognitionError(msg.Data)
		case "action_result":
			session.handleActionResult(msg.Data)
		case "config":
			session.handleConfigMessage(msg.Data)
		case "ping":
			session.sendWebSocketMessage("pong", nil)
		case "stop":
			session.Logger.Info("Received stop command from client")
			session.sendWebSocketMessage("stop_confirmation", map[string]interface{}{
				"session_id": session.ID,
				"message":    "Session stopped successfully",
			})
			return
		default:
			session.Logger.Warn("Unknown message type", zap.String("type", msg.Type))
		}
	}
}

// handleSessionOrchestrator emits periodic heartbeats until the session
// context is cancelled.
func (session *VoiceSession) handleSessionOrchestrator() {
	session.Logger.Info("Session orchestrator started")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-session.ctx.Done():
			session.Logger.Info("Session orchestrator stopped")
			return
		case <-ticker.C:
			session.Logger.Debug("Session heartbeat")
			session.sendWebSocketMessage("heartbeat", map[string]interface{}{
				"session_id": session.ID,
				"uptime":     time.Since(session.StartTime).String(),
			})
		}
	}
}

// handleTranscriptMessage feeds a client-side recognition result into the
// conversation loop. Browser sessions send these instead of raw audio.
func (session *VoiceSession) handleTranscriptMessage(data interface{}) {
	var t struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Source     string  `json:"source"`
	}

	if text, ok := data.(string); ok {
		t.Text = text
	} else if err := decodeInto(data, &t); err != nil {
		session.Logger.Warn("Invalid transcript payload", zap.Error(err))
		return
	}
	if t.Text == "" {
		return
	}
	if t.Source == "" {
		t.Source = "browser"
	}

	transcript := models.Transcript{
		Text:       t.Text,
		Confidence: t.Confidence,
		Source:     t.Source,
		ReceivedAt: time.Now(),
	}

	select {
	case session.TranscriptCh <- transcript:
		session.sendWebSocketMessage("transcript_ack", map[string]string{"text": t.Text})
	case <-session.ctx.Done():
	}
}

// handleAudioData forwards raw audio to the transcription backend. The
// audio handler is created on the first chunk so browser-only sessions
// never open a Deepgram connection.
func (session *VoiceSession) handleAudioData(data interface{}) {
	if session.AudioHandler == nil {
		if !session.Config().HasDeepgram() {
			session.Logger.Warn("Audio data received but no transcription backend is configured")
			return
		}
		handler, err := InitAudioHandler(session)
		if err != nil {
			session.Logger.Error("Failed to initialize audio handler", zap.Error(err))
			return
		}
		session.AudioHandler = handler
	}

	var audioBytes []byte
	switch v := data.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			session.Logger.Warn("Audio payload is not valid base64", zap.Error(err))
			return
		}
		audioBytes = decoded
	case map[string]interface{}:
		payload, ok := v["payload"].(string)
		if !ok {
			session.Logger.Warn("Unknown audio data format")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			session.Logger.Warn("Audio payload is not valid base64", zap.Error(err))
			return
		}
		audioBytes = decoded
	default:
		session.Logger.Warn("Unknown audio data format")
		return
	}

	if err := session.AudioHandler.ProcessAudioData(audioBytes); err != nil {
		session.Logger.Error("Failed to process audio data", zap.Error(err))
	}
}

// handleScreenElements stores the page summary the client pushed. Remote
// sessions report elements this way; local browser sessions read the DOM
// directly instead.
func (session *VoiceSession) handleScreenElements(data interface{}) {
	switch v := data.(type) {
	case string:
		session.SetScreenInfo(v)
	case []interface{}:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				lines = append(lines, s)
			}
		}
		session.SetScreenInfo(strings.Join(lines, "\n"))
	default:
		session.Logger.Warn("Unknown screen elements format")
	}
}

func (session *VoiceSession) handleRecognitionError(data interface{}) {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := decodeInto(data, &payload); err != nil {
		session.Logger.Warn("Invalid recognition error payload", zap.Error(err))
		return
	}

	recErr := &models.RecognitionError{Code: payload.Code, Message: payload.Message}
	session.Logger.Warn("Client recognition error", zap.Error(recErr))

	if feedback := recognitionFeedback(payload.Code); feedback != "" {
		session.Say(feedback)
	}
}

// recognitionFeedback maps a recognizer error code to a spoken hint.
// Silence and deliberate aborts stay quiet.
func recognitionFeedback(code string) string {
	switch code {
	case "no-speech", "aborted":
		return ""
	case "audio-capture":
		return "마이크를 사용할 수 없어요. 마이크 연결을 확인해 주세요."
	case "not-allowed":
		return "마이크 권한이 필요해요. 브라우저 설정에서 허용해 주세요."
	case "network":
		return "네트워크 연결이 불안정해요. 잠시 후 다시 시도해 주세요."
	default:
		return "음성 인식에 문제가 생겼어요. 다시 한 번 말씀해 주세요."
	}
}

func (session *VoiceSession) handleActionResult(data interface{}) {
	if session.remoteExecutor == nil {
		session.Logger.Debug("Action result received without a remote executor")
		return
	}
	var res actionResult
	if err := decodeInto(data, &res); err != nil {
		session.Logger.Warn("Invalid action result payload", zap.Error(err))
		return
	}
	if res.ActionID == "" {
		session.Logger.Warn("Action result missing action id")
		return
	}
	session.remoteExecutor.Resolve(res.ActionID, res)
}

// handleConfigMessage applies client tuning to a session-local copy so other
// sessions keep their own settings.
func (session *VoiceSession) handleConfigMessage(data interface{}) {
	configData, ok := data.(map[string]interface{})
	if !ok {
		session.Logger.Error("Invalid config data format")
		return
	}

	cfg := *session.Config()

	if raw, exists := configData["debounce_window"]; exists {
		if freqStr, ok := raw.(string); ok {
			if duration, err := time.ParseDuration(freqStr); err == nil {
				cfg.DebounceWindow = duration
				session.Logger.Info("Updated debounce window", zap.Duration("window", duration))
			}
		}
	}

	if raw, exists := configData["execute_threshold"]; exists {
		if threshold, ok := raw.(float64); ok && threshold > 0 && threshold <= 1 {
			cfg.ExecuteThreshold = threshold
			session.Logger.Info("Updated execute threshold", zap.Float64("threshold", threshold))
		}
	}

	session.SetConfig(&cfg)

	session.sendWebSocketMessage("config_updated", map[string]interface{}{
		"debounce_window":   cfg.DebounceWindow.String(),
		"execute_threshold": cfg.ExecuteThreshold,
	})
}

// decodeInto round-trips loosely typed websocket data into a struct.
func decodeInto(data interface{}, v interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
