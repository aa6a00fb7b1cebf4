// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Kind is the stable failure category carried by every sentinel.
type Kind string

// Failure kinds. Transport adapters map these to their native status codes.
const (
	KindInternal     Kind = "internal"
	KindAccessDenied Kind = "access_denied"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
)

// Error is a sentinel with a kind and a human-readable reason.
// Sentinels are compared by identity, so errors.Is works through %w wrapping.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func newErr(k Kind, reason string) *Error { return &Error{Kind: k, Reason: reason} }

// Access.
var (
	// ErrAccessDenied indicates a blocked relationship or an unauthorized actor.
	ErrAccessDenied = newErr(KindAccessDenied, "access denied")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = newErr(KindUnauthorized, "unauthorized")

	// ErrRateLimited indicates a temporary lock due to rate limiting.
	ErrRateLimited = newErr(KindRateLimited, "rate limited")
)

// Not found.
var (
	ErrNotFound             = newErr(KindNotFound, "not found")
	ErrUserNotFound         = newErr(KindNotFound, "user not found")
	ErrConversationNotFound = newErr(KindNotFound, "conversation not found")
	ErrMessageNotFound      = newErr(KindNotFound, "message not found")
	ErrPictureNotFound      = newErr(KindNotFound, "profile picture not found")
)

// Conflicts.
var (
	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = newErr(KindConflict, "already exists")

	ErrConversationExists = newErr(KindConflict, "conversation already exists")
	ErrAlreadyConnected   = newErr(KindConflict, "already connected")
	ErrRequestPending     = newErr(KindConflict, "connection request already pending")
	ErrAlreadyBlocked     = newErr(KindConflict, "user already blocked")
)

// Validation.
var (
	ErrSelfTarget         = newErr(KindValidation, "cannot target yourself")
	ErrNoPendingRequest   = newErr(KindValidation, "no pending connection request")
	ErrNotConnected       = newErr(KindValidation, "no connection exists with this user")
	ErrNotBlocked         = newErr(KindValidation, "user is not blocked")
	ErrEmptyMessage       = newErr(KindValidation, "message content or attachment must be provided")
	ErrEmptyQuery         = newErr(KindValidation, "search query cannot be empty")
	ErrUnrecognizedFormat = newErr(KindValidation, "unrecognized attachment format")
	ErrAttachmentTooLarge = newErr(KindValidation, "attachment exceeds maximum size")
	ErrInvalidArgument    = newErr(KindValidation, "invalid argument")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
