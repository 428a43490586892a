package notify

import (
	"fmt"

	"bmx-rewards-go/internal/models"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

var _ Sink = SendGridSink{}

// SendGridSink delivers messages through the SendGrid API.
type SendGridSink struct {
	client   *sendgrid.Client
	fromName string
	fromAddr string
}

func NewSendGridSink(cfg models.NotifyConfig) SendGridSink {
	return SendGridSink{
		client:   sendgrid.NewSendClient(cfg.SendGridKey),
		fromName: cfg.FromName,
		fromAddr: cfg.FromEmail,
	}
}

func (s SendGridSink) Send(recipient, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromAddr)
	to := mail.NewEmail("", recipient)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	response, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("unable to send email: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("email delivery failed: status %d: %s", response.StatusCode, response.Body)
	}

	zap.L().Info("Sent email",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.Int("status", response.StatusCode))
	return nil
}
