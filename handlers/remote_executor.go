package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

const ackTimeout = 3 * time.Second

// actionResult is the client's acknowledgement of one dispatched action.
type actionResult struct {
	ActionID     string                `json:"action_id"`
	Success      bool                  `json:"success"`
	Error        string                `json:"error,omitempty"`
	URLBefore    string                `json:"url_before,omitempty"`
	ScrollBefore models.ScrollPosition `json:"scroll_before"`
	Feedback     string                `json:"feedback,omitempty"`
}

// RemoteExecutor performs actions by dispatching them over the session's
// websocket and waiting for the page script to report back. Each in-flight
// action holds a one-shot channel keyed by its id.
type RemoteExecutor struct {
	session *VoiceSession

	mu      sync.Mutex
	pending map[string]chan actionResult
}

func NewRemoteExecutor(session *VoiceSession) *RemoteExecutor {
	return &RemoteExecutor{
		session: session,
		pending: make(map[string]chan actionResult),
	}
}

func (e *RemoteExecutor) Execute(ctx context.Context, action models.Action) (models.ActionOutcome, error) {
	ch := make(chan actionResult, 1)
	e.mu.Lock()
	e.pending[action.ID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, action.ID)
		e.mu.Unlock()
	}()

	e.session.sendWebSocketMessage("action", map[string]interface{}{
		"action_id":     action.ID,
		"intent":        action.Intent,
		"target":        action.Target,
		"original_text": action.OriginalText,
	})

	select {
	case res := <-ch:
		if !res.Success {
			reason := res.Error
			if reason == "" {
				reason = "client reported failure"
			}
			return models.ActionOutcome{}, &models.ExecutionError{Intent: action.Intent, Target: action.Target, Err: errors.New(reason)}
		}
		return models.ActionOutcome{
			URLBefore:    res.URLBefore,
			ScrollBefore: res.ScrollBefore,
			Feedback:     res.Feedback,
		}, nil
	case <-time.After(ackTimeout):
		// Old page scripts never ack. Treat the dispatch as delivered and
		// move on with an empty before-state.
		e.session.Logger.Debug("No action acknowledgement, assuming delivered",
			zap.String("action_id", action.ID),
			zap.String("intent", action.Intent))
		return models.ActionOutcome{}, nil
	case <-ctx.Done():
		return models.ActionOutcome{}, ctx.Err()
	}
}

// Undo is fire-and-forget: the page script restores the recorded state and
// there is nothing useful to wait for.
func (e *RemoteExecutor) Undo(ctx context.Context, rec *models.ActionRecord) error {
	payload := map[string]interface{}{}
	if rec != nil {
		payload["type"] = rec.Type
		payload["url_before"] = rec.URLBefore
		payload["scroll_before"] = rec.ScrollBefore
	}
	e.session.sendWebSocketMessage("undo", payload)
	return nil
}

// Resolve delivers a client acknowledgement to the waiting Execute call.
// Acks for abandoned actions are dropped.
func (e *RemoteExecutor) Resolve(id string, res actionResult) {
	e.mu.Lock()
	ch, ok := e.pending[id]
	e.mu.Unlock()
	if !ok {
		e.session.Logger.Debug("Dropping ack for unknown action", zap.String("action_id", id))
		return
	}
	select {
	case ch <- res:
	default:
	}
}
