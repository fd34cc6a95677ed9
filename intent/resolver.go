package intent

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Sori-Labs/sori-go-sdk/models"
	"github.com/Sori-Labs/sori-go-sdk/voice"
)

// Classifier is the shared contract of the remote stages. Implementations
// fail with *NetworkError or *ParseError; the resolver catches both.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, transcript, screenElements string) (models.IntentResult, error)
}

// Thresholds are the pipeline's decision constants. Tunable, not
// load-bearing: changing them shifts which stage answers, never whether an
// answer is produced.
type Thresholds struct {
	FastAccept     float64
	ContextAccept  float64
	ConfirmFloor   float64
	FastTimeout    time.Duration
	ContextTimeout time.Duration
}

// DefaultThresholds returns the canonical policy: fast results above 0.5
// are accepted outright, context results need 0.6, and anything at or below
// 0.3 is not worth a second remote opinion.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FastAccept:     0.5,
		ContextAccept:  0.6,
		ConfirmFloor:   0.3,
		FastTimeout:    2 * time.Second,
		ContextTimeout: 6 * time.Second,
	}
}

// ThresholdsFromConfig lifts the tunables out of the gateway configuration.
func ThresholdsFromConfig(cfg *models.Config) Thresholds {
	return Thresholds{
		FastAccept:     cfg.FastAcceptThreshold,
		ContextAccept:  cfg.ContextAcceptThreshold,
		ConfirmFloor:   cfg.ConfirmFloor,
		FastTimeout:    cfg.FastTimeout,
		ContextTimeout: cfg.ContextTimeout,
	}
}

// ResolverOptions wires a resolver. Fast and Context may be nil when the
// matching credentials are not configured; Screen may be nil for sessions
// that never report visible elements.
type ResolverOptions struct {
	Matcher    *Matcher
	Cache      *Cache
	Fast       Classifier
	Context    Classifier
	Screen     func(ctx context.Context) string
	Thresholds Thresholds
	Logger     *zap.Logger
}

// Resolver chains the pattern matcher and the remote classifiers into one
// decision per utterance. Resolve never fails and always terminates: remote
// errors degrade stage by stage down to the pattern matcher.
type Resolver struct {
	matcher *Matcher
	cache   *Cache
	fast    Classifier
	context Classifier
	screen  func(ctx context.Context) string
	th      Thresholds
	group   singleflight.Group
	log     *zap.Logger
}

// NewResolver builds a resolver from options, filling in defaults for
// anything unset.
func NewResolver(opts ResolverOptions) *Resolver {
	matcher := opts.Matcher
	if matcher == nil {
		matcher = NewMatcher()
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewCache(models.DefaultCacheSize, nil, 0)
	}
	th := opts.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Resolver{
		matcher: matcher,
		cache:   cache,
		fast:    opts.Fast,
		context: opts.Context,
		screen:  opts.Screen,
		th:      th,
		log:     log,
	}
}

// Resolve maps a transcript to an intent decision. Concurrent calls for the
// same normalized transcript are collapsed into one pipeline run.
func (r *Resolver) Resolve(ctx context.Context, transcript string) models.IntentResult {
	key := voice.Normalize(transcript)
	if key == "" {
		return models.IntentResult{
			Intent:     models.IntentUnknown,
			Confidence: unknownConfidence,
			Source:     models.SourcePattern,
		}
	}

	if res, ok := r.cache.Get(ctx, key); ok {
		r.log.Debug("Intent cache hit",
			zap.String("transcript", key),
			zap.String("intent", res.Intent))
		return res
	}

	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		return r.resolveSlow(ctx, key), nil
	})
	return v.(models.IntentResult)
}

func (r *Resolver) resolveSlow(ctx context.Context, transcript string) models.IntentResult {
	if r.fast == nil && r.context == nil {
		return r.accept(ctx, transcript, r.matcher.Match(transcript))
	}

	screen := ""
	if r.screen != nil {
		screen = r.screen(ctx)
	}

	tryContext := r.fast == nil
	if r.fast != nil {
		res, err := r.classify(ctx, r.fast, transcript, screen, r.th.FastTimeout)
		switch {
		case err != nil:
			r.log.Warn("Fast classifier failed",
				zap.String("classifier", r.fast.Name()),
				zap.Error(err))
			tryContext = true
		case res.Confidence > r.th.FastAccept:
			return r.accept(ctx, transcript, res)
		case res.Confidence > r.th.ConfirmFloor:
			// Ambiguous middle band: worth the slower second opinion.
			tryContext = true
		}
		// At or below the floor the fast stage already delivered a
		// confident miss; go straight to the pattern fallback.
	}

	if tryContext && r.context != nil {
		res, err := r.classify(ctx, r.context, transcript, screen, r.th.ContextTimeout)
		if err != nil {
			r.log.Warn("Context classifier failed",
				zap.String("classifier", r.context.Name()),
				zap.Error(err))
		} else if res.Confidence >= r.th.ContextAccept {
			return r.accept(ctx, transcript, res)
		}
	}

	return r.accept(ctx, transcript, r.matcher.Match(transcript))
}

type classifyOutcome struct {
	res models.IntentResult
	err error
}

// classify runs one remote stage under its timeout. The result channel is
// buffered so a classifier that ignores cancellation can still settle late
// without leaking its goroutine; a late result is dropped, never delivered.
func (r *Resolver) classify(ctx context.Context, c Classifier, transcript, screen string, timeout time.Duration) (models.IntentResult, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := make(chan classifyOutcome, 1)
	go func() {
		res, err := c.Classify(cctx, transcript, screen)
		out <- classifyOutcome{res: res, err: err}
	}()

	select {
	case o := <-out:
		return o.res, o.err
	case <-cctx.Done():
		return models.IntentResult{}, &NetworkError{Endpoint: c.Name(), Err: cctx.Err()}
	}
}

// accept finalizes a stage's answer: clamp the confidence, force unknown
// tags into the vocabulary, fill OriginalText and write the cache. Only
// accepted results are cached, so an abandoned slow response can never
// overwrite a decision that was already delivered.
func (r *Resolver) accept(ctx context.Context, transcript string, res models.IntentResult) models.IntentResult {
	res.Confidence = models.ClampConfidence(res.Confidence)
	if !models.ValidIntent(res.Intent) {
		res.Intent = models.IntentUnknown
	}
	if res.OriginalText == "" {
		res.OriginalText = transcript
	}
	r.cache.Put(ctx, transcript, res)
	r.log.Info("Intent resolved",
		zap.String("transcript", transcript),
		zap.String("intent", res.Intent),
		zap.Float64("confidence", res.Confidence),
		zap.String("source", res.Source))
	return res
}
