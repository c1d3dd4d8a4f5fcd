package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  KafkaReader
	logger  *zap.Logger
	handler func(context.Context, Event) error
	// newBackOff paces redelivery of a message whose handler failed.
	newBackOff func() backoff.BackOff
}

// NewConsumer reads events from topic as part of consumer group groupID.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
		Dialer:  kafka.DefaultDialer,
	}), logger)
}

func newConsumer(reader KafkaReader, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		logger:     logger.Named("kafka_consumer"),
		newBackOff: handlerBackOff,
	}
}

// handlerBackOff retries without an elapsed-time limit; only cancellation or a
// permanent error ends the retries for a message.
func handlerBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

func (c *Consumer) Start(ctx context.Context) {
	go c.Run(ctx)
}

// Run consumes until ctx is cancelled. A message is committed only after the
// handler accepted it. A failing handler is retried with backoff and the next
// message is not fetched until it succeeds, so no later offset is committed
// past it. Undecodable messages, and those the handler rejects with
// backoff.Permanent, are committed and skipped.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message", zap.Error(err))
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error("Failed to parse event",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
			)
			c.commit(ctx, msg, "")
			continue
		}

		if c.handler != nil {
			if err := c.handle(ctx, msg, event); err != nil {
				// Cancelled while retrying: leave the message uncommitted so
				// the group redelivers it.
				c.logger.Warn("Stopped before event was handled",
					zap.Error(err),
					zap.String("event_type", string(event.Type)),
					zap.Int64("offset", msg.Offset),
				)
				return
			}
		}

		c.commit(ctx, msg, event.Type)
	}
}

// handle runs the handler until it succeeds or fails permanently. It returns
// an error only when ctx ended first.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, event Event) error {
	var permanent *backoff.PermanentError
	err := backoff.RetryNotify(func() error {
		err := c.handler(ctx, event)
		errors.As(err, &permanent)
		return err
	}, backoff.WithContext(c.newBackOff(), ctx), func(err error, wait time.Duration) {
		c.logger.Error("Failed to handle event, retrying",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.Int64("offset", msg.Offset),
			zap.Duration("wait", wait),
		)
	})
	switch {
	case err == nil:
		return nil
	case permanent != nil:
		c.logger.Error("Dropping event the handler cannot process",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.Int64("offset", msg.Offset),
		)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		// The backoff gave up; keep the offset like on cancellation.
		return err
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message, eventType EventType) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to commit message",
			zap.Error(err),
			zap.String("event_type", string(eventType)),
		)
	}
}

func (c *Consumer) RegisterHandler(fn func(context.Context, Event) error) {
	c.handler = fn
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}
