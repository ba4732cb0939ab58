package errors

import "errors"

var (
	ErrInvalidDropRequest       = errors.New("invalid drop request")
	ErrInvalidItem              = errors.New("invalid drop item")
	ErrInvalidPayload           = errors.New("invalid drop item payload")
	ErrPoolExhausted            = errors.New("no drop items available")
	ErrAlreadyClaimedToday      = errors.New("requester already claimed a drop today")
	ErrRequesterNotFound        = errors.New("requester not found")
	ErrCommandThrottled         = errors.New("too many commands from requester")
	ErrTransientStore           = errors.New("transient store failure")
	ErrMalformedOutboxMessage   = errors.New("malformed outbox message")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)
