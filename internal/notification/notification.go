package notification

import "context"

// EmailSender delivers transactional email (OTP codes, reset codes).
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers transactional SMS to an E.164 phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// NoopEmailSender and NoopSMSSender stand in when delivery is not configured
// (tests, local development).
type NoopEmailSender struct{}

func (NoopEmailSender) SendEmail(context.Context, string, string, string) error { return nil }

type NoopSMSSender struct{}

func (NoopSMSSender) SendSMS(context.Context, string, string) error { return nil }
