package models

import (
	"context"
	"time"
)

const (
	// SESSION_END is sent on the internal string channels to stop the
	// goroutines draining them.
	SESSION_END = "<SESSION_END>"

	// END_OF_SPEECH marks the end of one utterance on the raw transcript
	// channel fed by the speech recognizer.
	END_OF_SPEECH = "<END_OF_SPEECH>"
)

// Transcript is one finalized utterance handed to the conversation loop.
type Transcript struct {
	Text       string
	Confidence float64
	Source     string // "client" or "deepgram"
	ReceivedAt time.Time
}

// WebSocketMessage is the envelope for every message on the voice socket.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Action is one DOM command sent to the executor. ID correlates the
// action_result acknowledgement from the page script.
type Action struct {
	ID           string `json:"id"`
	Intent       string `json:"intent"`
	Target       string `json:"target,omitempty"`
	OriginalText string `json:"original_text,omitempty"`
}

// ActionOutcome reports what the executor observed while performing an
// action. The Before fields feed the undo history; Feedback is spoken back
// to the user when non-empty.
type ActionOutcome struct {
	URLBefore    string
	ScrollBefore ScrollPosition
	Feedback     string
}

// Executor performs DOM actions on behalf of the session. The remote
// implementation forwards actions to the page script over the websocket; the
// local implementation drives a Chrome tab directly.
type Executor interface {
	// Execute performs the action and reports the page state captured
	// before it ran.
	Execute(ctx context.Context, action Action) (ActionOutcome, error)

	// Undo reverses one recorded action. A nil record means there is no
	// history and the executor should fall back to browser-level "go back".
	Undo(ctx context.Context, rec *ActionRecord) error
}

// ElementDescriber is implemented by executors that can produce the visible
// clickable/typeable element summary themselves. Sessions without one rely on
// screen_elements pushes from the page script.
type ElementDescriber interface {
	DescribeElements(ctx context.Context) (string, error)
}
