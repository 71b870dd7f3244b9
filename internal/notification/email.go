package notification

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v5"
	"go.uber.org/zap"

	"kyc-service/internal/config"
	"kyc-service/internal/util"
)

// MailgunSender delivers email through the Mailgun API.
type MailgunSender struct {
	client *mailgun.Client
	domain string
	sender string
	logger *zap.Logger
}

func NewMailgunSender(cfg config.MailgunConfig, logger *zap.Logger) *MailgunSender {
	return &MailgunSender{
		client: mailgun.NewMailgun(cfg.APIKey),
		domain: cfg.Domain,
		sender: cfg.Sender,
		logger: logger,
	}
}

func (s *MailgunSender) SendEmail(ctx context.Context, to, subject, body string) error {
	message := mailgun.NewMessage(s.domain, s.sender, subject, body, to)

	resp, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Debug("Email sent",
		util.String("to", to),
		util.String("subject", subject),
		util.String("message_id", resp.ID),
	)
	return nil
}
