package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRecipient    = errors.New("recipient must be a valid email address")
	ErrInvalidTemplateName = errors.New("template name must not be empty")
	ErrInvalidPriority     = errors.New("invalid priority: must be system, event, or campaign")
	ErrUnknownRecipient    = errors.New("recipient is not a known member")
	ErrUnknownTemplate     = errors.New("unknown email template")
	ErrTemplateInactive    = errors.New("email template is inactive")
	ErrDailyLimitExceeded  = errors.New("daily send limit exceeded")
	ErrNotCancellable      = errors.New("item cannot be cancelled in its current status")
	ErrBatchEmpty          = errors.New("batch must contain at least one request")
	ErrBatchTooLarge       = errors.New("batch exceeds maximum of 1000 requests")
	ErrWindowPassed        = errors.New("delivery window already passed")
	ErrNoParticipants      = errors.New("event has no participants")
)
