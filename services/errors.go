package services

import (
	"errors"
	"fmt"
)

// Kind is the stable, client-visible error code
type Kind string

const (
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindBadRequest          Kind = "bad_request"
	KindInvalidJSON         Kind = "invalid_json"
	KindInvalidAnswer       Kind = "invalid_answer"
	KindBadAddress          Kind = "bad_address"
	KindBadCode             Kind = "bad_code"
	KindChapterEnded        Kind = "chapter_ended"
	KindChapterAlreadyEnded Kind = "chapter_already_ended"
	KindChapterNotFound     Kind = "chapter_not_found"
	KindClueNotFound        Kind = "clue_not_found"
	KindNotWinner           Kind = "not_winner"
	KindNotFound            Kind = "not_found"
	KindAlreadySolved       Kind = "already_solved"
	KindAlreadyClaimed      Kind = "already_claimed"
	KindClaimPending        Kind = "claim_pending"
	KindCooldown            Kind = "cooldown"
	KindUnavailable         Kind = "service_unavailable"
	KindInternal            Kind = "internal_server_error"
)

// Error is a request-scoped failure with a kind the HTTP layer maps to a status
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on kind so callers can use errors.Is(err, ErrAlreadySolved)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Internal wraps a downstream failure. The cause is logged, never sent to clients.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}

func cooldownError(retryAfter int) *Error {
	return &Error{Kind: KindCooldown, Message: "Please wait before trying again", RetryAfter: retryAfter}
}

var (
	ErrUnauthorized        = newError(KindUnauthorized, "Authentication required")
	ErrForbidden           = newError(KindForbidden, "Access denied")
	ErrInvalidAnswer       = newError(KindInvalidAnswer, "Incorrect answer")
	ErrBadAddress          = newError(KindBadAddress, "Invalid Solana address")
	ErrBadCode             = newError(KindBadCode, "Invalid chapter code")
	ErrChapterEnded        = newError(KindChapterEnded, "Chapter has ended")
	ErrChapterAlreadyEnded = newError(KindChapterAlreadyEnded, "Chapter has already ended")
	ErrChapterNotFound     = newError(KindChapterNotFound, "Chapter not found")
	ErrClueNotFound        = newError(KindClueNotFound, "Clue not found")
	ErrNotWinner           = newError(KindNotWinner, "You are not a winner for this chapter")
	ErrAlreadySolved       = newError(KindAlreadySolved, "You have already solved this clue")
	ErrAlreadyClaimed      = newError(KindAlreadyClaimed, "Prize already claimed")
	ErrClaimPending        = newError(KindClaimPending, "A claim for this prize is already being processed")
	ErrCooldown            = cooldownError(0)
)

// BadRequest reports malformed client input
func BadRequest(message string) *Error {
	return newError(KindBadRequest, message)
}

// AsError extracts the *Error in err's chain, mapping anything else to internal
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("Internal server error", err)
}
