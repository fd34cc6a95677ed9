package handlers

import (
	"context"
	"encoding/base64"
	"time"

	"go.uber.org/zap"
)

const synthesizeTimeout = 15 * time.Second

// Say pushes one spoken response to the client. The echo guard is armed
// before the message leaves so a transcript of our own audio arriving
// moments later is already covered.
func (s *VoiceSession) Say(text string) {
	if text == "" {
		return
	}

	s.Guard.OnSpeechStart(text)

	payload := map[string]interface{}{
		"text": text,
	}

	if s.Synth != nil {
		ctx, cancel := context.WithTimeout(s.ctx, synthesizeTimeout)
		audio, err := s.Synth.Synthesize(ctx, text)
		cancel()
		if err != nil {
			s.Logger.Warn("Speech synthesis failed, sending text only", zap.Error(err))
		} else if len(audio) > 0 {
			payload["audio"] = base64.StdEncoding.EncodeToString(audio)
			payload["format"] = "mp3"
		}
	}

	s.Logger.Info("Speaking", zap.String("text", text))
	s.sendWebSocketMessage("speak", payload)
}
