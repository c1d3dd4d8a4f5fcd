// Command reminders runs the anniversary and compliance reminders once.
// Schedule it daily.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/cosec/internal/cosec/config"
	"github.com/gartstein/cosec/internal/cosec/db"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/gartstein/cosec/internal/cosec/reminder"
	"go.uber.org/zap"
)

func main() {
	kindFlag := flag.String("kind", "all", "reminder kind: first, second, third, compliance, anniversary or all")
	force := flag.Bool("test", false, "send for every company regardless of dates")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*kindFlag, *force, logger); err != nil {
		logger.Fatal("Reminder run failed", zap.Error(err))
	}
}

func run(kindFlag string, force bool, logger *zap.Logger) error {
	kinds := reminder.Kinds
	if kindFlag != "all" {
		kind, err := reminder.ParseKind(kindFlag)
		if err != nil {
			return err
		}
		kinds = []reminder.Kind{kind}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var repo *db.Repository
	err = backoff.Retry(func() error {
		var err error
		repo, err = db.NewRepository(&db.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	var notifier reminder.Notifier
	switch cfg.Reminders.Dispatch {
	case config.DispatchKafka:
		producer, err := events.NewProducer(cfg.KafkaBrokers, logger, cfg.NotificationsTopic)
		if err != nil {
			return fmt.Errorf("create producer: %w", err)
		}
		defer producer.Close()
		notifier = reminder.NewQueueNotifier(producer)
	default:
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
		notifier = reminder.NewMailNotifier(transport, cfg.SMTP.From)
	}

	scheduler := reminder.NewScheduler(repo, notifier, reminder.Config{
		StaffRecipients: cfg.Reminders.StaffRecipients,
		Location:        cfg.Location(),
		DateFormat:      cfg.Documents.DateFormat,
	}, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, kind := range kinds {
		report, err := scheduler.Run(ctx, kind, force)
		if err != nil {
			return fmt.Errorf("%s reminders: %w", kind, err)
		}
		failed += report.Failed
		fmt.Printf("%-12s sent=%d skipped=%d failed=%d\n", kind, report.Sent, report.Skipped, report.Failed)
	}
	if failed > 0 {
		return fmt.Errorf("%d reminders could not be delivered", failed)
	}
	return nil
}
