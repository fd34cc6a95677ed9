package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/intent"
	"github.com/Sori-Labs/sori-go-sdk/models"
	"github.com/Sori-Labs/sori-go-sdk/voice"
)

// IntentResolver maps one utterance to one decision. Satisfied by
// *intent.Resolver; narrowed to an interface so session tests can drive the
// conversation loop with a scripted resolver.
type IntentResolver interface {
	Resolve(ctx context.Context, transcript string) models.IntentResult
}

// Synthesizer turns feedback text into audio. Satisfied by
// *utils.SpeechSynthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CommandMemory records confidently executed commands for future prompt
// grounding. Satisfied by *utils.ExampleMemory.
type CommandMemory interface {
	Store(ctx context.Context, transcript string, res models.IntentResult) error
}

// Gateway holds everything shared across voice sessions: the rule table,
// the intent cache, the remote classifier clients and the optional local
// browser executor. Per-session state lives on VoiceSession.
type Gateway struct {
	Config  *models.Config
	Matcher *intent.Matcher
	Cache   *intent.Cache
	Fast    intent.Classifier
	Context intent.Classifier
	Synth   Synthesizer
	Memory  CommandMemory

	// Local, when set, executes actions against a gateway-side browser
	// tab instead of forwarding them to the page script.
	Local models.Executor
}

// VoiceSession is one websocket client: its channels, its confirmation and
// undo state, and its echo guard. All conversation state is mutated only by
// the conversation loop goroutine.
type VoiceSession struct {
	ID     string
	Conn   *websocket.Conn
	Logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// TranscriptCh carries finalized utterances from the socket read loop
	// (and the audio handler) to the conversation loop.
	TranscriptCh chan models.Transcript

	Resolver IntentResolver
	Executor models.Executor
	Guard    *voice.EchoGuard
	History  *models.ActionHistory
	Synth    Synthesizer
	Memory   CommandMemory

	// Confirmation slot: at most one pending command per session. Owned by
	// the conversation loop.
	pendingCommand   string
	pendingCreatedAt time.Time

	// Anti-duplicate window. Owned by the conversation loop.
	lastTranscript   string
	lastTranscriptAt time.Time

	// Latest element summary pushed by the page script.
	screenMu   sync.RWMutex
	screenInfo string

	// Active tuning. Config messages arrive on the read loop while the
	// conversation loop is consulting thresholds, so updates swap in a
	// fresh copy under the mutex; the pointee is never mutated in place.
	configMu sync.RWMutex
	config   *models.Config

	StartTime    time.Time
	LastActivity time.Time

	writeMu  sync.Mutex
	stopOnce sync.Once

	AudioHandler   *AudioHandler
	remoteExecutor *RemoteExecutor
}

// NewVoiceSession wires a session from the gateway's shared components. The
// resolver is built per session so its screen-summary source can follow
// this client's page.
func NewVoiceSession(id string, conn *websocket.Conn, g *Gateway) *VoiceSession {
	ctx, cancel := context.WithCancel(context.Background())
	logger := zap.L().With(zap.String("session_id", id))

	session := &VoiceSession{
		ID:     id,
		config: g.Config,
		Conn:   conn,
		Logger: logger,

		ctx:    ctx,
		cancel: cancel,

		TranscriptCh: make(chan models.Transcript, 100),

		Guard:   voice.NewEchoGuard(),
		History: models.NewActionHistory(models.DefaultHistoryCapacity),
		Synth:   g.Synth,
		Memory:  g.Memory,

		StartTime:    time.Now(),
		LastActivity: time.Now(),
	}

	if g.Local != nil {
		session.Executor = g.Local
	} else {
		session.remoteExecutor = NewRemoteExecutor(session)
		session.Executor = session.remoteExecutor
	}

	session.Resolver = intent.NewResolver(intent.ResolverOptions{
		Matcher:    g.Matcher,
		Cache:      g.Cache,
		Fast:       g.Fast,
		Context:    g.Context,
		Screen:     session.screenSummary,
		Thresholds: intent.ThresholdsFromConfig(g.Config),
		Logger:     logger,
	})

	return session
}

// Context returns the session lifetime context.
func (s *VoiceSession) Context() context.Context { return s.ctx }

// Stop ends the session: every goroutine selecting on the session context
// unwinds, and closing the connection unblocks the read loop.
func (s *VoiceSession) Stop() {
	s.stopOnce.Do(func() {
		s.Logger.Info("Stopping session")
		s.cancel()

		select {
		case s.TranscriptCh <- models.Transcript{Text: models.SESSION_END}:
		default:
		}

		if s.AudioHandler != nil {
			s.AudioHandler.Close()
		}
		if s.Conn != nil {
			s.Conn.Close()
		}
	})
}

// UpdateActivity marks the session as recently active.
func (s *VoiceSession) UpdateActivity() {
	s.LastActivity = time.Now()
}

// SetScreenInfo stores the latest element summary pushed by the client.
func (s *VoiceSession) SetScreenInfo(info string) {
	s.screenMu.Lock()
	s.screenInfo = info
	s.screenMu.Unlock()
}

// Config returns the session's active tuning. Callers must treat the result
// as read-only; live updates replace the whole value via SetConfig.
func (s *VoiceSession) Config() *models.Config {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

// SetConfig swaps in replacement tuning.
func (s *VoiceSession) SetConfig(cfg *models.Config) {
	s.configMu.Lock()
	s.config = cfg
	s.configMu.Unlock()
}

// screenSummary feeds classifier prompts: ask the executor when it can
// describe the page itself, otherwise use what the client last pushed.
func (s *VoiceSession) screenSummary(ctx context.Context) string {
	if describer, ok := s.Executor.(models.ElementDescriber); ok {
		summary, err := describer.DescribeElements(ctx)
		if err == nil && summary != "" {
			return summary
		}
		if err != nil {
			s.Logger.Debug("Element description failed", zap.Error(err))
		}
	}

	s.screenMu.RLock()
	defer s.screenMu.RUnlock()
	return s.screenInfo
}

// sendWebSocketMessage writes one envelope to the client. Serialized by a
// mutex: the conversation loop, the audio handler and the heartbeat all
// write to the same connection.
func (s *VoiceSession) sendWebSocketMessage(msgType string, data interface{}) {
	msg := models.WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.Conn.WriteJSON(msg); err != nil {
		s.Logger.Error("Failed to send websocket message", zap.Error(err), zap.String("type", msgType))
	}
}
