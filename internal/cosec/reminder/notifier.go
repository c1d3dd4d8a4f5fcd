package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification is one rendered reminder email.
type Notification struct {
	Kind        Kind      `json:"kind"`
	CompanyID   uuid.UUID `json:"company_id,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	Recipients  []string  `json:"recipients"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MailNotifier sends notifications straight through a mail transport.
type MailNotifier struct {
	transport mailer.Transport
	from      string
}

func NewMailNotifier(transport mailer.Transport, from string) *MailNotifier {
	return &MailNotifier{transport: transport, from: from}
}

func (m *MailNotifier) Notify(ctx context.Context, n Notification) error {
	if len(n.Recipients) == 0 {
		return e.ErrEmptyRecipients
	}
	return m.transport.Send(ctx, &mailer.Message{
		From:    m.from,
		To:      n.Recipients,
		Subject: n.Subject,
		Body:    n.Body,
	})
}

// EventProducer publishes domain events.
type EventProducer interface {
	Produce(eventType events.EventType, key string, payload interface{})
}

// QueueNotifier publishes notifications for the notifier worker instead of
// sending them itself.
type QueueNotifier struct {
	producer EventProducer
}

func NewQueueNotifier(producer EventProducer) *QueueNotifier {
	return &QueueNotifier{producer: producer}
}

func (q *QueueNotifier) Notify(_ context.Context, n Notification) error {
	if len(n.Recipients) == 0 {
		return e.ErrEmptyRecipients
	}
	key := string(n.Kind)
	if n.CompanyID != uuid.Nil {
		key = n.CompanyID.String()
	}
	q.producer.Produce(events.ReminderRequested, key, n)
	return nil
}

// EventHandler delivers queued reminder_requested events through n. Other
// event types are ignored. Delivery failures are returned for the consumer to
// retry, except a notification without recipients, which never succeeds.
func EventHandler(n Notifier, logger *zap.Logger) func(context.Context, events.Event) error {
	logger = logger.Named("reminder_handler")
	return func(ctx context.Context, event events.Event) error {
		if event.Type != events.ReminderRequested {
			return nil
		}
		var notification Notification
		if err := json.Unmarshal(event.Payload, &notification); err != nil {
			// A payload that cannot be decoded will never succeed; drop it.
			logger.Error("Failed to decode reminder notification",
				zap.Error(err),
				zap.String("key", event.Key),
			)
			return nil
		}
		if err := n.Notify(ctx, notification); err != nil {
			if errors.Is(err, e.ErrEmptyRecipients) {
				return backoff.Permanent(fmt.Errorf("deliver %s reminder for %s: %w", notification.Kind, event.Key, err))
			}
			return fmt.Errorf("deliver %s reminder for %s: %w", notification.Kind, event.Key, err)
		}
		logger.Info("Reminder delivered",
			zap.String("kind", string(notification.Kind)),
			zap.String("company_id", notification.CompanyID.String()),
			zap.Int("recipients", len(notification.Recipients)),
		)
		return nil
	}
}
