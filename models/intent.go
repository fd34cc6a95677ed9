package models

// Intent tags form a fixed vocabulary. Classifiers must map anything else to
// IntentUnknown before it reaches the execution layer.
const (
	IntentClick    = "click"
	IntentSearch   = "search"
	IntentNavigate = "navigate"
	IntentScroll   = "scroll"
	IntentInput    = "input"
	IntentRead     = "read"
	IntentLogin    = "login"
	IntentConfirm  = "confirm"
	IntentCancel   = "cancel"
	IntentHelp     = "help"
	IntentSelect   = "select"
	IntentOrder    = "order"
	IntentClear    = "clear"
	IntentUnknown  = "unknown"
)

// Source tags record which pipeline stage produced a result. Besides
// logging, they mark which results came from a remote model and are worth
// remembering as examples.
const (
	SourcePattern       = "pattern"
	SourceFastRemote    = "fast-remote"
	SourceContextRemote = "context-remote"
	SourceFallback      = "fallback"
)

var intentVocabulary = map[string]bool{
	IntentClick:    true,
	IntentSearch:   true,
	IntentNavigate: true,
	IntentScroll:   true,
	IntentInput:    true,
	IntentRead:     true,
	IntentLogin:    true,
	IntentConfirm:  true,
	IntentCancel:   true,
	IntentHelp:     true,
	IntentSelect:   true,
	IntentOrder:    true,
	IntentClear:    true,
	IntentUnknown:  true,
}

// ValidIntent reports whether tag is part of the fixed intent vocabulary.
func ValidIntent(tag string) bool {
	return intentVocabulary[tag]
}

// IntentResult is the unit value produced by every classifier stage. One is
// created per utterance, consumed once by the execution step, and never
// persisted.
type IntentResult struct {
	Intent       string  `json:"intent"`
	Confidence   float64 `json:"confidence"`
	Target       string  `json:"target,omitempty"`
	Source       string  `json:"source"`
	OriginalText string  `json:"original_text"`
}

// ClampConfidence forces c into [0,1]. Remote models occasionally report
// values like 1.2 or -0.1; the rest of the pipeline assumes the closed range.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
