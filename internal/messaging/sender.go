package messaging

import "context"

// SMSSender delivers one rendered text message and returns the provider's
// message id. Implementations are opaque and fallible; the workflow engine
// bounds each call with its own per-action timeout.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (externalID string, err error)
}

// EmailSender delivers one rendered email and returns the provider's
// message id.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (externalID string, err error)
}
