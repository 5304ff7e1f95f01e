package notify

import (
	"context"

	"storefront_ledger/internal/domain"

	"github.com/sirupsen/logrus"
)

// LogSink writes every event as a structured log line. It is the fallback
// when no broker is configured.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, ev domain.Event) error {
	logrus.WithFields(logrus.Fields{
		"event_id":    ev.ID,
		"kind":        ev.Kind,
		"account_id":  ev.AccountID,
		"amount":      ev.Amount.StringFixed(2),
		"new_balance": ev.NewBalance.StringFixed(2),
		"reference":   ev.Reference,
	}).Info("Notification")
	return nil
}
