package intent

import "fmt"

// NetworkError wraps a transport-level failure talking to a remote
// classifier endpoint. The resolver catches it and degrades; it never
// reaches callers of Resolve.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("classifier endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError wraps a malformed classifier response. Raw holds the body the
// model actually returned so the failure can be diagnosed from logs.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 160 {
		raw = raw[:160] + "..."
	}
	return fmt.Sprintf("unparsable classifier response %q: %v", raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
