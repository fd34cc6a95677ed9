package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/models"
	"github.com/Sori-Labs/sori-go-sdk/voice"
)

const (
	executeTimeout    = 10 * time.Second
	storeTimeout      = 5 * time.Second
	pendingConfirmTTL = 30 * time.Second
)

const helpText = "사용할 수 있는 명령이에요. 검색, 이동, 클릭, 스크롤, 입력, 주문을 말씀하시고, 취소라고 말하면 이전 동작을 되돌려요."

// ConversationLoop drains finalized transcripts and runs each one through
// the full decision chain. Utterances are strictly serialized: the next one
// is not looked at until the current one has resolved and executed.
func (s *VoiceSession) ConversationLoop() {
	s.Logger.Info("Conversation loop started")
	for {
		select {
		case <-s.ctx.Done():
			return
		case t := <-s.TranscriptCh:
			if t.Text == models.SESSION_END {
				s.Logger.Info("Conversation loop received session end")
				return
			}
			s.processTranscript(t)
		}
	}
}

// processTranscript applies the fixed utterance order: duplicate window,
// echo filter, pending confirmation, cancellation short-circuit, then the
// resolution pipeline.
func (s *VoiceSession) processTranscript(t models.Transcript) {
	normalized := voice.Normalize(t.Text)
	if normalized == "" {
		return
	}
	s.UpdateActivity()

	now := time.Now()
	if normalized == s.lastTranscript && now.Sub(s.lastTranscriptAt) < s.Config().DebounceWindow {
		s.Logger.Debug("Dropping duplicate transcript", zap.String("transcript", normalized))
		return
	}

	if s.Guard.IsEcho(normalized) {
		s.Logger.Debug("Dropping self-echo", zap.String("transcript", normalized))
		return
	}

	s.lastTranscript = normalized
	s.lastTranscriptAt = now

	if s.pendingCommand != "" && now.Sub(s.pendingCreatedAt) > pendingConfirmTTL {
		s.Logger.Info("Pending confirmation expired", zap.String("command", s.pendingCommand))
		s.pendingCommand = ""
	}

	if s.pendingCommand != "" {
		s.handleConfirmationReply(t, normalized)
		return
	}

	if voice.IsCancellation(normalized) {
		s.Logger.Info("Cancellation keyword, undoing last action", zap.String("transcript", normalized))
		s.undoLast()
		return
	}

	s.processCommand(t.Text, false)
}

// handleConfirmationReply settles the pending slot. It is cleared before
// anything else runs, so at most one confirmation ever waits and a torn
// state can never be observed by the next utterance.
func (s *VoiceSession) handleConfirmationReply(t models.Transcript, normalized string) {
	original := s.pendingCommand
	s.pendingCommand = ""

	switch {
	case voice.IsAffirmative(normalized):
		s.Logger.Info("Command confirmed", zap.String("command", original))
		s.processCommand(original, true)
	case voice.IsCancellation(normalized):
		s.Logger.Info("Command cancelled", zap.String("command", original))
		s.Say("알겠습니다. 취소했어요.")
	default:
		s.Logger.Info("Pending command dropped for new utterance", zap.String("dropped", original))
		s.processCommand(t.Text, false)
	}
}

// processCommand resolves text and either executes, asks for confirmation,
// or apologizes. A confirmed command executes at the lower floor; holding
// it to the normal bar would re-ask forever on a cached mid-confidence
// result.
func (s *VoiceSession) processCommand(text string, confirmed bool) {
	res := s.Resolver.Resolve(s.ctx, text)

	cfg := s.Config()
	executeAt := cfg.ExecuteThreshold
	if confirmed {
		executeAt = cfg.ConfirmFloor
	}

	switch {
	case res.Intent == models.IntentUnknown || res.Confidence < cfg.ConfirmFloor:
		s.Say("잘 이해하지 못했어요. 다시 말씀해 주시겠어요?")
	case res.Confidence < executeAt:
		s.pendingCommand = text
		s.pendingCreatedAt = time.Now()
		s.Logger.Info("Awaiting confirmation",
			zap.String("command", text),
			zap.Float64("confidence", res.Confidence))
		s.Say(fmt.Sprintf("\"%s\" 명령을 실행할까요? 네 또는 취소라고 말씀해 주세요.", res.OriginalText))
	case res.Intent == models.IntentHelp:
		s.Say(helpText)
	case res.Intent == models.IntentCancel:
		s.undoLast()
	default:
		s.execute(res)
	}
}

// execute performs one resolved intent and records it for undo.
func (s *VoiceSession) execute(res models.IntentResult) {
	action := models.Action{
		ID:           uuid.New().String(),
		Intent:       res.Intent,
		Target:       res.Target,
		OriginalText: res.OriginalText,
	}

	ctx, cancel := context.WithTimeout(s.ctx, executeTimeout)
	defer cancel()

	outcome, err := s.Executor.Execute(ctx, action)
	if err != nil {
		s.Logger.Warn("Action failed",
			zap.String("intent", res.Intent),
			zap.String("target", res.Target),
			zap.Error(err))
		s.Say("죄송해요, 실행하지 못했어요. 다시 말씀해 주세요.")
		return
	}

	if recordType, ok := undoableType(res.Intent); ok {
		s.History.Push(models.ActionRecord{
			Type:         recordType,
			Timestamp:    time.Now(),
			ScrollBefore: outcome.ScrollBefore,
			URLBefore:    outcome.URLBefore,
		})
	}

	s.remember(res)

	feedback := outcome.Feedback
	if feedback == "" {
		feedback = spokenFeedback(res)
	}
	s.Say(feedback)
}

// undoLast pops the most recent recorded action and reverses it. With no
// history the executor falls back to browser-level back navigation.
func (s *VoiceSession) undoLast() {
	ctx, cancel := context.WithTimeout(s.ctx, executeTimeout)
	defer cancel()

	var recPtr *models.ActionRecord
	if rec, ok := s.History.Pop(); ok {
		recPtr = &rec
		s.Logger.Info("Undoing last action", zap.String("type", rec.Type))
	} else {
		s.Logger.Info("No history, falling back to browser back")
	}

	if err := s.Executor.Undo(ctx, recPtr); err != nil {
		s.Logger.Warn("Undo failed", zap.Error(err))
		s.Say("죄송해요, 되돌리지 못했어요.")
		return
	}
	s.Say("이전 동작을 취소했어요.")
}

// remember stores confidently executed remote resolutions. Pattern results
// are skipped: that vocabulary is already built in.
func (s *VoiceSession) remember(res models.IntentResult) {
	if s.Memory == nil {
		return
	}
	if res.Source != models.SourceFastRemote && res.Source != models.SourceContextRemote {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.Memory.Store(ctx, res.OriginalText, res); err != nil {
			s.Logger.Debug("Failed to store command example", zap.Error(err))
		}
	}()
}

// undoableType maps an executed intent to its undo record type. Intents
// without an entry leave no history.
func undoableType(tag string) (string, bool) {
	switch tag {
	case models.IntentNavigate:
		return models.ActionNavigate, true
	case models.IntentClick, models.IntentSelect, models.IntentOrder, models.IntentLogin, models.IntentConfirm:
		return models.ActionClick, true
	case models.IntentScroll:
		return models.ActionScroll, true
	case models.IntentSearch:
		return models.ActionFormSubmit, true
	}
	return "", false
}

func spokenFeedback(res models.IntentResult) string {
	switch res.Intent {
	case models.IntentNavigate:
		if res.Target != "" {
			return fmt.Sprintf("%s 페이지로 이동할게요.", res.Target)
		}
		return "페이지를 이동할게요."
	case models.IntentClick, models.IntentSelect:
		if res.Target != "" {
			return fmt.Sprintf("%s 항목을 선택했어요.", res.Target)
		}
		return "선택했어요."
	case models.IntentSearch:
		if res.Target != "" {
			return fmt.Sprintf("%s 검색 결과를 보여드릴게요.", res.Target)
		}
		return "검색할게요."
	case models.IntentScroll:
		if res.Target == "up" {
			return "위로 올릴게요."
		}
		return "아래로 내릴게요."
	case models.IntentInput:
		return "입력했어요."
	case models.IntentOrder:
		if res.Target != "" {
			return fmt.Sprintf("%s 주문을 진행할게요.", res.Target)
		}
		return "주문을 진행할게요."
	case models.IntentLogin:
		return "로그인 페이지를 열게요."
	case models.IntentClear:
		return "지웠어요."
	case models.IntentRead:
		return "읽을 내용이 없어요."
	case models.IntentConfirm:
		return "확인했어요."
	}
	return "완료했어요."
}
