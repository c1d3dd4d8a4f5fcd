// Command notifier delivers reminder notifications queued on Kafka.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gartstein/cosec/internal/cosec/config"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/gartstein/cosec/internal/cosec/reminder"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	var transport mailer.Transport = mailer.NewLogTransport(logger)
	if cfg.SMTP.Host != "" {
		transport = mailer.NewSMTPTransport(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			UseTLS:   cfg.SMTP.UseTLS,
		}, logger)
	}

	consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.NotificationsTopic, logger)
	defer consumer.Close()
	consumer.RegisterHandler(reminder.EventHandler(reminder.NewMailNotifier(transport, cfg.SMTP.From), logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Notifier started",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.NotificationsTopic),
	)
	consumer.Run(ctx)
	logger.Info("Notifier stopped")
}
