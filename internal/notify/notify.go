package notify

import (
	"go.uber.org/zap"
)

// Sink delivers user-facing and operator-facing messages. Delivery is
// best effort; settlement and withdrawal flows never fail on a sink
// error.
type Sink interface {
	Send(recipient, subject, body string) error
}

// LogSink writes messages to the log instead of delivering them. Used
// when no mail credentials are configured.
type LogSink struct{}

func (LogSink) Send(recipient, subject, body string) error {
	zap.L().Info("Notification (log only)",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
