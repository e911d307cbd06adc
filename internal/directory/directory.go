// Package directory holds the engine's view of the surrounding membership
// site: recipient lookup, template lookup, and event participant listing.
// The engine only reads through these interfaces; the web application owns
// the underlying data.
package directory

import "context"

// Recipient is a resolvable member address.
type Recipient struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Template is an email template with its source strings unrendered.
type Template struct {
	ID      string
	Name    string
	Subject string
	HTML    string
	Text    string
	Active  bool
}

// RecipientDirectory resolves an address to a known member.
type RecipientDirectory interface {
	// Resolve returns the member for an address, or domain.ErrUnknownRecipient.
	Resolve(ctx context.Context, address string) (*Recipient, error)
}

// TemplateStore looks up templates by name.
type TemplateStore interface {
	// Resolve returns the template, or domain.ErrUnknownTemplate. Inactive
	// templates are returned as-is; admission decides how to treat them.
	Resolve(ctx context.Context, name string) (*Template, error)
}

// ParticipantSource lists the recipients registered for an event.
// Used only by the tiered-reminder path.
type ParticipantSource interface {
	ListParticipants(ctx context.Context, eventID string) ([]Recipient, error)
}
