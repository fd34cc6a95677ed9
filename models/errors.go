package models

import "fmt"

// RecognitionError is a failure reported by the speech-capture collaborator
// (microphone, permission, or recognizer network issues). It is surfaced to
// the user as feedback and never retried by the gateway.
type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition error (%s): %s", e.Code, e.Message)
}

// ExecutionError is a failed or unresolvable DOM action. It is surfaced as a
// spoken apology and never retried.
type ExecutionError struct {
	Intent string
	Target string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("failed to execute %s on %q: %v", e.Intent, e.Target, e.Err)
	}
	return fmt.Sprintf("failed to execute %s: %v", e.Intent, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
