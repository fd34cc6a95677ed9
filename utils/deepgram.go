package utils

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

// transcriberCallback receives live-transcription events. Final transcripts
// and the end-of-speech sentinel go to Transcripts, which the audio handler
// must drain. Interim transcripts go to Interims on a best-effort basis so
// a session that does not care about barge-in cannot stall the callback.
type transcriberCallback struct {
	Transcripts chan string
	Interims    chan string

	useUtteranceEnd     bool
	confidenceThreshold float64

	totalAudioBytesSent int64
}

// Transcriber streams browser microphone audio to Deepgram and emits
// finalized Korean transcripts. Used when the page script sends raw PCM
// instead of doing recognition itself.
type Transcriber struct {
	dgClient *listen.WSCallback
	callback *transcriberCallback
}

// NewTranscriber opens a live-transcription connection for 16kHz linear16
// mono audio, the format the page script captures from the microphone.
func NewTranscriber(cfg *models.Config, transcripts, interims chan string) *Transcriber {
	lang := cfg.Language
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i] // Deepgram wants "ko", not "ko-KR"
	}

	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Language:       lang,
		Encoding:       "linear16",
		SampleRate:     16000,
		Channels:       1,
		Endpointing:    "100",
		InterimResults: true,
		FillerWords:    true,
		Model:          "nova-2",
		UtteranceEndMs: strconv.Itoa(1000),
	}

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	callback := &transcriberCallback{
		Transcripts:         transcripts,
		Interims:            interims,
		useUtteranceEnd:     true,
		confidenceThreshold: 0.5,
	}

	dgClient, err := listen.NewWebSocketUsingCallback(context.Background(), cfg.DeepgramAPIKey, clientOptions, transcriptOptions, callback)
	if err != nil {
		log.Error("ERROR creating LiveTranscription connection:", err)
	}

	return &Transcriber{
		dgClient: dgClient,
		callback: callback,
	}
}

// Connect establishes the websocket to Deepgram.
func (t *Transcriber) Connect() bool {
	if !t.dgClient.Connect() {
		log.Error("ERROR: Failed to connect to Deepgram WebSocket")
		return false
	}
	return true
}

// Send streams one audio chunk.
func (t *Transcriber) Send(data []byte) error {
	reader := bufio.NewReader(bytes.NewReader(data))
	err := t.dgClient.Stream(reader)
	if err != nil && err != io.EOF {
		log.Error("Error streaming to Deepgram:", err)
		return err
	}
	t.callback.totalAudioBytesSent += int64(len(data))
	return nil
}

// Close tears the connection down.
func (t *Transcriber) Close() {
	t.dgClient.Stop()
}

func (c *transcriberCallback) Open(or *msginterfaces.OpenResponse) error {
	log.Info("Deepgram socket connection opened")
	return nil
}

func (c *transcriberCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		log.Warn("No transcription alternatives provided")
		return nil
	}

	alternative := mr.Channel.Alternatives[0]
	transcript := strings.TrimSpace(alternative.Transcript)
	if transcript == "" {
		return nil
	}

	if alternative.Confidence < c.confidenceThreshold {
		log.Debug("Discarding low confidence transcript:", transcript)
		return nil
	}

	if c.Interims != nil {
		select {
		case c.Interims <- transcript:
		default:
		}
	}

	if mr.IsFinal {
		log.Debug("Final word of a sentence received:", transcript)
		c.Transcripts <- transcript
	} else {
		log.Debug("Interim transcript:", transcript)
	}

	if !c.useUtteranceEnd && mr.SpeechFinal {
		log.Debug("Speech final")
		c.Transcripts <- models.END_OF_SPEECH
	}

	return nil
}

func (c *transcriberCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	log.Debug("Received metadata:", md)
	return nil
}

func (c *transcriberCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	log.Debug("Speech started")
	return nil
}

func (c *transcriberCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	log.Debug("Utterance ended")
	c.Transcripts <- models.END_OF_SPEECH
	return nil
}

func (c *transcriberCallback) Close(cr *msginterfaces.CloseResponse) error {
	log.Info("WebSocket connection closed")
	return nil
}

func (c *transcriberCallback) Error(er *msginterfaces.ErrorResponse) error {
	log.Error("WebSocket error:", er)
	return nil
}

func (c *transcriberCallback) UnhandledEvent(byData []byte) error {
	log.Warn("Unhandled event:", string(byData))
	return nil
}
