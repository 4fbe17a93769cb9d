package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunSender sends email through the Mailgun HTTP API.
type MailgunSender struct {
	mg *mailgun.MailgunImpl
}

// NewMailgunSender creates a sender for the given sending domain. apiBase is
// optional and selects another region, e.g. mailgun.APIBaseEU.
func NewMailgunSender(domain, apiKey, apiBase string) *MailgunSender {
	mg := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		mg.SetAPIBase(apiBase)
	}
	return &MailgunSender{mg: mg}
}

func (s *MailgunSender) Send(ctx context.Context, email Email) error {
	msg := s.mg.NewMessage(email.From, email.Subject, "", email.To)
	msg.SetHtml(email.HTML)

	resp, id, err := s.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	slog.Info("email accepted by mailgun", "id", id, "response", resp)
	return nil
}

// LogSender writes emails to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, email Email) error {
	slog.Info("email (not sent)", "from", email.From, "to", email.To, "subject", email.Subject, "body", email.HTML)
	return nil
}
