package chat

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure an operation returns wraps exactly one of them.
var (
	// ErrLoad: history or read-state fetch failed. The previous view is kept.
	ErrLoad = errors.New("load failed")
	// ErrSend: a write failed. Optimistic entries have been rolled back.
	ErrSend = errors.New("send failed")
	// ErrPermission: the requester's role does not allow the action.
	ErrPermission = errors.New("permission denied")
	// ErrValidation: a required field was empty or malformed; nothing was sent.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound: the target no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrSubscription: the realtime binding could not be established.
	ErrSubscription = errors.New("realtime subscription failed")
)

// ErrStale is returned by Store.Load when the selection moved on while the
// fetch was in flight and the result was dropped.
var ErrStale = errors.New("stale load discarded")

// Error carries the failing operation and, for sends, the text the member
// typed so the input can be refilled.
type Error struct {
	Kind error
	Op   string
	Text string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ReturnedText extracts the text to give back to the member after a failed send.
func ReturnedText(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && errors.Is(e.Kind, ErrSend) {
		return e.Text, true
	}
	return "", false
}

// KindOf names the kind of err for user-facing notices.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLoad):
		return "load"
	case errors.Is(err, ErrSend):
		return "send"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSubscription):
		return "subscription"
	}
	return "internal"
}
