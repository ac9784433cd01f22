package ai

import "fmt"

// CapabilityError wraps a failed call to the language-understanding
// capability. Timeout distinguishes deadline expiry so callers can report
// it, but both degrade to the same manual-entry fallback.
type CapabilityError struct {
	Stage   string
	Timeout bool
	Err     error
}

func (e *CapabilityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("capability %s timed out: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("capability %s failed: %v", e.Stage, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// MalformedResponseError indicates the capability answered, but not with the
// single JSON object the contract requires.
type MalformedResponseError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Stage, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
