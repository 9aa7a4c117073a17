package api

import "fmt"

// Error indicates the remote API answered outside the 200-299 range.
// Remote errors are surfaced to the user as transient notices; they are
// never fatal to the ledger or the session state machine.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api request not ok: status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("api request not ok: status %d", e.Status)
}

// ErrInvalidPayload indicates the remote API returned JSON that does not
// conform to the expected schema.
type ErrInvalidPayload struct {
	Schema string
	Err    error
}

func (e *ErrInvalidPayload) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.Schema, e.Err)
}

func (e *ErrInvalidPayload) Unwrap() error { return e.Err }
