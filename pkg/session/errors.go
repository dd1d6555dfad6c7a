package session

import "fmt"

// CorruptStateError reports a persisted backlog document that is not valid
// JSON or fails schema validation. It is never swallowed: proceeding with
// unvalidated state would break the single-source-of-truth invariant.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt session state at %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}
