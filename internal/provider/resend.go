package provider

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendConfig holds the Resend API provider configuration.
type ResendConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// ResendProvider delivers through the Resend transactional email API.
type ResendProvider struct {
	client *resend.Client
	config ResendConfig
}

func NewResendProvider(cfg ResendConfig) *ResendProvider {
	return &ResendProvider{
		client: resend.NewClient(cfg.APIKey),
		config: cfg,
	}
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) IsAvailable(_ context.Context) bool {
	return p.config.APIKey != "" && p.config.FromEmail != ""
}

func (p *ResendProvider) Send(ctx context.Context, msg *Message) error {
	from := p.config.FromEmail
	if p.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", p.config.FromName, p.config.FromEmail)
	}

	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}

	if _, err := p.client.Emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

var _ Provider = (*ResendProvider)(nil)
