package provider

import "context"

// Message is a fully-prepared email, rendered at admission time.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Provider abstracts one delivery transport. Implementations carry no
// business logic: they report availability and attempt a single send.
// Mocking this interface in tests gives full control over delivery outcomes
// without real network calls.
type Provider interface {
	// Name identifies the provider in logs, metrics, and the sent_via field.
	Name() string
	// IsAvailable reports whether the provider is configured and reachable
	// enough to be worth attempting.
	IsAvailable(ctx context.Context) bool
	// Send delivers one message. The context carries the per-send timeout.
	Send(ctx context.Context, msg *Message) error
}
