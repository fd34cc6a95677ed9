package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Sori-Labs/sori-go-sdk/intent"
	"github.com/Sori-Labs/sori-go-sdk/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedResolver struct {
	mu      sync.Mutex
	results map[string]models.IntentResult
	calls   []string
}

func (r *scriptedResolver) Resolve(ctx context.Context, transcript string) models.IntentResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, transcript)
	if res, ok := r.results[transcript]; ok {
		res.OriginalText = transcript
		return res
	}
	return models.IntentResult{
		Intent:       models.IntentUnknown,
		Confidence:   0.1,
		Source:       models.SourcePattern,
		OriginalText: transcript,
	}
}

func (r *scriptedResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingExecutor struct {
	mu      sync.Mutex
	actions []models.Action
	undos   []*models.ActionRecord
	outcome models.ActionOutcome
	err     error
}

func (e *recordingExecutor) Execute(ctx context.Context, action models.Action) (models.ActionOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
	return e.outcome, e.err
}

func (e *recordingExecutor) Undo(ctx context.Context, rec *models.ActionRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.undos = append(e.undos, rec)
	return nil
}

func (e *recordingExecutor) setOutcome(outcome models.ActionOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcome = outcome
}

func testConfig() *models.Config {
	return &models.Config{
		Language:               "ko-KR",
		ExecuteThreshold:       0.6,
		ConfirmFloor:           0.3,
		FastAcceptThreshold:    0.5,
		ContextAcceptThreshold: 0.6,
		FastTimeout:            time.Second,
		ContextTimeout:         time.Second,
		DebounceWindow:         2 * time.Second,
		CacheSize:              16,
		CacheTTL:               time.Minute,
	}
}

// newTestSession builds a session over a real websocket pair so spoken
// responses can be read back from the client side.
func newTestSession(t *testing.T, cfg *models.Config) (*VoiceSession, *websocket.Conn) {
	t.Helper()

	restore := zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(restore)

	serverConn := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	gateway := &Gateway{
		Config:  cfg,
		Matcher: intent.NewMatcher(),
		Cache:   intent.NewCache(cfg.CacheSize, nil, cfg.CacheTTL),
	}

	session := NewVoiceSession("test-session", <-serverConn, gateway)
	t.Cleanup(session.Stop)

	return session, client
}

func readMessage(t *testing.T, client *websocket.Conn) models.WebSocketMessage {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.WebSocketMessage
	require.NoError(t, client.ReadJSON(&msg))
	return msg
}

func spokenText(t *testing.T, msg models.WebSocketMessage) string {
	t.Helper()
	require.Equal(t, "speak", msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	text, ok := data["text"].(string)
	require.True(t, ok)
	return text
}

func TestMidConfidenceAsksThenExecutesOnYes(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"장바구니 담아 줘": {Intent: models.IntentClick, Confidence: 0.45, Target: "장바구니", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "장바구니 담아 줘"})

	question := spokenText(t, readMessage(t, client))
	assert.Contains(t, question, "실행할까요")
	assert.Empty(t, executor.actions)
	assert.Equal(t, "장바구니 담아 줘", session.pendingCommand)

	session.processTranscript(models.Transcript{Text: "네"})

	feedback := spokenText(t, readMessage(t, client))
	assert.Contains(t, feedback, "선택")
	require.Len(t, executor.actions, 1)
	assert.Equal(t, models.IntentClick, executor.actions[0].Intent)
	assert.Equal(t, "장바구니", executor.actions[0].Target)
	assert.NotEmpty(t, executor.actions[0].ID)
	assert.Empty(t, session.pendingCommand)
}

func TestMidConfidenceCancelledOnNo(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"장바구니 담아 줘": {Intent: models.IntentClick, Confidence: 0.45, Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "장바구니 담아 줘"})
	readMessage(t, client)

	session.processTranscript(models.Transcript{Text: "취소"})

	reply := spokenText(t, readMessage(t, client))
	assert.Contains(t, reply, "취소")
	assert.Empty(t, executor.actions)
	assert.Empty(t, session.pendingCommand)
}

func TestPendingReplacedByNewCommand(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"장바구니 담아 줘": {Intent: models.IntentClick, Confidence: 0.45, Source: models.SourcePattern},
		"유튜브 열어 줘":  {Intent: models.IntentNavigate, Confidence: 0.9, Target: "유튜브", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "장바구니 담아 줘"})
	readMessage(t, client)

	session.processTranscript(models.Transcript{Text: "유튜브 열어 줘"})

	require.Len(t, executor.actions, 1)
	assert.Equal(t, models.IntentNavigate, executor.actions[0].Intent)
	assert.Empty(t, session.pendingCommand)
}

func TestPendingConfirmationExpires(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.pendingCommand = "유튜브 열어 줘"
	session.pendingCreatedAt = time.Now().Add(-pendingConfirmTTL - time.Second)

	session.processTranscript(models.Transcript{Text: "네"})

	// The stale question is gone, so the bare yes resolves on its own and
	// comes back unknown.
	apology := spokenText(t, readMessage(t, client))
	assert.Contains(t, apology, "다시")
	assert.Empty(t, executor.actions)
	assert.Equal(t, []string{"네"}, resolver.calls)
}

func TestCancellationUndoesLastAction(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"유튜브 열어 줘": {Intent: models.IntentNavigate, Confidence: 0.9, Target: "유튜브", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{outcome: models.ActionOutcome{URLBefore: "https://www.google.com"}}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "유튜브 열어 줘"})
	readMessage(t, client)

	session.processTranscript(models.Transcript{Text: "취소"})

	reply := spokenText(t, readMessage(t, client))
	assert.Contains(t, reply, "취소")
	require.Len(t, executor.undos, 1)
	require.NotNil(t, executor.undos[0])
	assert.Equal(t, models.ActionNavigate, executor.undos[0].Type)
	assert.Equal(t, "https://www.google.com", executor.undos[0].URLBefore)
	assert.Equal(t, 0, session.History.Len())
}

func TestUndoPopsMostRecentFirst(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"유튜브 열어 줘": {Intent: models.IntentNavigate, Confidence: 0.9, Target: "유튜브", Source: models.SourcePattern},
		"넷플릭스 열어 줘": {Intent: models.IntentNavigate, Confidence: 0.9, Target: "넷플릭스", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	executor.setOutcome(models.ActionOutcome{URLBefore: "https://first.example"})
	session.processTranscript(models.Transcript{Text: "유튜브 열어 줘"})
	readMessage(t, client)

	executor.setOutcome(models.ActionOutcome{URLBefore: "https://second.example"})
	session.processTranscript(models.Transcript{Text: "넷플릭스 열어 줘"})
	readMessage(t, client)

	session.processTranscript(models.Transcript{Text: "취소"})
	readMessage(t, client)
	session.processTranscript(models.Transcript{Text: "되돌려"})
	readMessage(t, client)
	session.processTranscript(models.Transcript{Text: "취소해 줘"})
	readMessage(t, client)

	require.Len(t, executor.undos, 3)
	assert.Equal(t, "https://second.example", executor.undos[0].URLBefore)
	assert.Equal(t, "https://first.example", executor.undos[1].URLBefore)
	assert.Nil(t, executor.undos[2])
}

func TestDuplicateTranscriptDebounced(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"유튜브 열어 줘": {Intent: models.IntentNavigate, Confidence: 0.9, Target: "유튜브", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "유튜브 열어 줘"})
	readMessage(t, client)
	session.processTranscript(models.Transcript{Text: "유튜브 열어 줘"})
	session.processTranscript(models.Transcript{Text: "유튜브 열어 줘"})

	assert.Equal(t, 1, resolver.callCount())
	assert.Len(t, executor.actions, 1)
}

func TestSelfEchoFiltered(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"날씨 검색해 봐": {Intent: models.IntentSearch, Confidence: 0.9, Target: "날씨", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.Say("장바구니를 열었습니다")
	readMessage(t, client)

	// A transcript of our own announcement comes straight back.
	session.processTranscript(models.Transcript{Text: "장바구니 열었습니다"})
	assert.Equal(t, 0, resolver.callCount())

	// An unrelated command inside the same window still goes through.
	session.processTranscript(models.Transcript{Text: "날씨 검색해 봐"})
	assert.Equal(t, 1, resolver.callCount())
	assert.Len(t, executor.actions, 1)
}

func TestUnknownUtteranceApologizes(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "오늘 기분 어때"})

	apology := spokenText(t, readMessage(t, client))
	assert.Contains(t, apology, "다시")
	assert.Empty(t, executor.actions)
	assert.Empty(t, session.pendingCommand)
}

func TestBelowFloorSkipsConfirmation(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"그거 눌러": {Intent: models.IntentClick, Confidence: 0.2, Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "그거 눌러"})

	apology := spokenText(t, readMessage(t, client))
	assert.Contains(t, apology, "다시")
	assert.Empty(t, session.pendingCommand)
	assert.Empty(t, executor.actions)
}

func TestHelpSpeaksWithoutExecuting(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"도움말": {Intent: models.IntentHelp, Confidence: 0.9, Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "도움말"})

	reply := spokenText(t, readMessage(t, client))
	assert.Contains(t, reply, "명령")
	assert.Empty(t, executor.actions)
}

func TestExecutionFailureApologizes(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"구매 버튼 눌러 줘": {Intent: models.IntentClick, Confidence: 0.9, Target: "구매", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{err: &models.ExecutionError{Intent: models.IntentClick, Target: "구매"}}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "구매 버튼 눌러 줘"})

	apology := spokenText(t, readMessage(t, client))
	assert.Contains(t, apology, "죄송")
	assert.Equal(t, 0, session.History.Len())
}

func TestOutcomeFeedbackPreferred(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"페이지 읽어 줘": {Intent: models.IntentRead, Confidence: 0.9, Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{outcome: models.ActionOutcome{Feedback: "첫 번째 줄입니다."}}
	session.Resolver = resolver
	session.Executor = executor

	session.processTranscript(models.Transcript{Text: "페이지 읽어 줘"})

	reply := spokenText(t, readMessage(t, client))
	assert.Equal(t, "첫 번째 줄입니다.", reply)
}

type recordingMemory struct {
	mu    sync.Mutex
	saved []string
	done  chan struct{}
}

func (m *recordingMemory) Store(ctx context.Context, transcript string, res models.IntentResult) error {
	m.mu.Lock()
	m.saved = append(m.saved, transcript)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func TestRemoteResolutionsRemembered(t *testing.T) {
	session, client := newTestSession(t, testConfig())

	resolver := &scriptedResolver{results: map[string]models.IntentResult{
		"아이스 아메리카노 큰 걸로": {Intent: models.IntentOrder, Confidence: 0.8, Target: "아이스 아메리카노", Source: models.SourceFastRemote},
		"유튜브 열어 줘":        {Intent: models.IntentNavigate, Confidence: 0.9, Target: "유튜브", Source: models.SourcePattern},
	}}
	executor := &recordingExecutor{}
	memory := &recordingMemory{done: make(chan struct{}, 2)}
	session.Resolver = resolver
	session.Executor = executor
	session.Memory = memory

	session.processTranscript(models.Transcript{Text: "아이스 아메리카노 큰 걸로"})
	readMessage(t, client)

	select {
	case <-memory.done:
	case <-time.After(2 * time.Second):
		t.Fatal("store was never called")
	}
	assert.Equal(t, []string{"아이스 아메리카노 큰 걸로"}, memory.saved)

	// Pattern-sourced results stay out of the example store.
	session.processTranscript(models.Transcript{Text: "유튜브 열어 줘"})
	readMessage(t, client)

	select {
	case <-memory.done:
		t.Fatal("pattern resolution should not be stored")
	case <-time.After(100 * time.Millisecond):
	}
}
