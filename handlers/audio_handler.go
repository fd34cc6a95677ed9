package handlers

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/models"
	"github.com/Sori-Labs/sori-go-sdk/utils"
)

// AudioHandler bridges raw client audio to the transcription backend and
// folds the recognized fragments into whole utterances.
type AudioHandler struct {
	session     *VoiceSession
	transcriber *utils.Transcriber

	finals   chan string
	interims chan string
}

func InitAudioHandler(session *VoiceSession) (*AudioHandler, error) {
	session.Logger.Info("Initializing audio handler")

	finals := make(chan string, 100)
	interims := make(chan string, 100)

	transcriber := utils.NewTranscriber(session.Config(), finals, interims)
	if !transcriber.Connect() {
		return nil, fmt.Errorf("failed to connect to deepgram")
	}

	handler := &AudioHandler{
		session:     session,
		transcriber: transcriber,
		finals:      finals,
		interims:    interims,
	}

	session.Logger.Info("Audio handler connected to Deepgram")

	go handler.accumulateTranscripts()
	go handler.forwardInterims()

	return handler, nil
}

// accumulateTranscripts folds final fragments into one utterance and hands
// it to the conversation loop once the recognizer reports end of speech.
func (h *AudioHandler) accumulateTranscripts() {
	var current strings.Builder

	for {
		select {
		case <-h.session.ctx.Done():
			return
		case fragment := <-h.finals:
			if fragment != models.END_OF_SPEECH {
				if strings.TrimSpace(fragment) != "" {
					current.WriteString(fragment)
					current.WriteString(" ")
				}
				continue
			}

			utterance := strings.TrimSpace(current.String())
			current.Reset()
			if utterance == "" {
				continue
			}

			h.session.Logger.Info("End of speech, utterance complete", zap.String("transcript", utterance))
			h.session.sendWebSocketMessage("transcript_final", map[string]string{
				"transcript": utterance,
			})

			transcript := models.Transcript{
				Text:       utterance,
				Source:     "deepgram",
				ReceivedAt: time.Now(),
			}
			select {
			case h.session.TranscriptCh <- transcript:
			case <-h.session.ctx.Done():
				return
			}
		}
	}
}

// forwardInterims streams partial recognition results to the client so the
// page can show live captions.
func (h *AudioHandler) forwardInterims() {
	for {
		select {
		case <-h.session.ctx.Done():
			return
		case interim := <-h.interims:
			h.session.sendWebSocketMessage("transcript_interim", map[string]string{
				"transcript": interim,
			})
		}
	}
}

// ProcessAudioData sends one audio chunk straight through to the
// transcriber.
func (h *AudioHandler) ProcessAudioData(audioData []byte) error {
	if err := h.transcriber.Send(audioData); err != nil {
		h.session.Logger.Error("Failed to send audio data to Deepgram", zap.Error(err))
		return err
	}
	return nil
}

func (h *AudioHandler) Close() {
	h.session.Logger.Info("Closing audio handler")
	if h.transcriber != nil {
		h.transcriber.Close()
	}
}
