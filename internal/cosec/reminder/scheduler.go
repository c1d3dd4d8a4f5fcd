package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/gartstein/cosec/internal/cosec/metrics"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/gartstein/cosec/internal/pkg/utils"
	"go.uber.org/zap"
)

// Store is what a reminder run reads.
type Store interface {
	CompaniesForReminders(ctx context.Context) ([]models.Company, error)
	GetEmailTemplateByName(ctx context.Context, name string) (*models.EmailTemplate, error)
}

// Config tunes a Scheduler.
type Config struct {
	// StaffRecipients receive the anniversary digest.
	StaffRecipients []string
	Location        *time.Location
	DateFormat      string
}

// Report summarises one run.
type Report struct {
	Kind    Kind
	Date    time.Time
	Sent    int
	Skipped int
	Failed  int
}

// Scheduler runs reminder kinds against every company.
type Scheduler struct {
	store    Store
	notifier Notifier
	cfg      Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewScheduler(store Store, notifier Notifier, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = "02-01-2006"
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("reminder"),
		now:      time.Now,
	}
}

// templateData is what reminder templates are executed against.
type templateData struct {
	CompanyName        string
	RegistrationNumber string
	IncorporationDate  string
	AnniversaryDate    string
	DueDate            string
}

type digestData struct {
	Today    []templateData
	Upcoming []templateData
}

// Run sends the reminders of kind that are due today. With force every
// company with an incorporation date is treated as due.
func (s *Scheduler) Run(ctx context.Context, kind Kind, force bool) (*Report, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	today := Day(s.now(), s.cfg.Location)
	report := &Report{Kind: kind, Date: today}

	companies, err := s.store.CompaniesForReminders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load companies: %w", err)
	}
	subject, body, err := s.texts(ctx, kind)
	if err != nil {
		return nil, err
	}

	if kind == KindAnniversary {
		err = s.digest(ctx, companies, today, force, subject, body, report)
	} else {
		for i := range companies {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			s.remind(ctx, kind, &companies[i], today, force, subject, body, report)
		}
	}

	s.logger.Info("Reminder run finished",
		zap.String("kind", string(kind)),
		zap.Time("date", today),
		zap.Bool("force", force),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, err
}

// texts returns the registered reminder_<kind> template or the built-in text.
func (s *Scheduler) texts(ctx context.Context, kind Kind) (string, string, error) {
	tpl, err := s.store.GetEmailTemplateByName(ctx, "reminder_"+string(kind))
	switch {
	case err == nil:
		return tpl.Subject, tpl.Body, nil
	case errors.Is(err, e.ErrNotFound):
		d := defaultTexts[kind]
		return d.Subject, d.Body, nil
	default:
		return "", "", fmt.Errorf("load reminder template: %w", err)
	}
}

func (s *Scheduler) remind(ctx context.Context, kind Kind, c *models.Company, today time.Time, force bool, subject, body string, report *Report) {
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("company_id", c.ID.String()),
		zap.String("company", c.DisplayName()),
	}
	if c.IncorporationDate == nil {
		s.skip(kind, report)
		s.logger.Warn("Skipped company without incorporation date", fields...)
		return
	}

	anniversary, due := Due(kind, *c.IncorporationDate, today)
	if !due {
		if !force {
			s.skip(kind, report)
			s.logger.Debug("Not a reminder day", fields...)
			return
		}
		anniversary = NextAnniversary(*c.IncorporationDate, today)
		s.logger.Warn("Forced reminder outside its trigger day", fields...)
	}

	to := c.RecipientEmails()
	if len(to) == 0 {
		s.skip(kind, report)
		s.logger.Warn("Skipped company without recipient email", fields...)
		return
	}

	subj, text, err := mailer.Render(subject, body, s.data(c, anniversary))
	if err == nil {
		err = s.notifier.Notify(ctx, Notification{
			Kind:        kind,
			CompanyID:   c.ID,
			CompanyName: c.DisplayName(),
			Recipients:  to,
			Subject:     subj,
			Body:        text,
		})
	}
	if err != nil {
		report.Failed++
		s.metrics.IncReminder(string(kind), "failed")
		s.logger.Error("Failed to send reminder", append(fields, zap.Error(err))...)
		return
	}
	report.Sent++
	s.metrics.IncReminder(string(kind), "sent")
	s.logger.Info("Reminder sent", append(fields, zap.Strings("recipients", to))...)
}

func (s *Scheduler) skip(kind Kind, report *Report) {
	report.Skipped++
	s.metrics.IncReminder(string(kind), "skipped")
}

// digest sends staff one message listing companies whose anniversary is
// today or DigestLookahead days away.
func (s *Scheduler) digest(ctx context.Context, companies []models.Company, today time.Time, force bool, subject, body string, report *Report) error {
	upcoming := today.AddDate(0, 0, DigestLookahead)
	var data digestData
	for i := range companies {
		c := &companies[i]
		if c.IncorporationDate == nil {
			continue
		}
		switch inc := *c.IncorporationDate; {
		case IsAnniversary(inc, today):
			data.Today = append(data.Today, s.data(c, today))
		case IsAnniversary(inc, upcoming):
			data.Upcoming = append(data.Upcoming, s.data(c, upcoming))
		case force:
			data.Upcoming = append(data.Upcoming, s.data(c, NextAnniversary(inc, today)))
		}
	}
	if len(data.Today)+len(data.Upcoming) == 0 {
		s.skip(KindAnniversary, report)
		s.logger.Info("No companies with upcoming anniversaries")
		return nil
	}

	staff := utils.DedupeEmails(s.cfg.StaffRecipients)
	if len(staff) == 0 {
		s.skip(KindAnniversary, report)
		s.logger.Warn("Anniversary digest has no staff recipients configured")
		return nil
	}
	subj, text, err := mailer.Render(subject, body, data)
	if err == nil {
		err = s.notifier.Notify(ctx, Notification{Kind: KindAnniversary, Recipients: staff, Subject: subj, Body: text})
	}
	if err != nil {
		report.Failed++
		s.metrics.IncReminder(string(KindAnniversary), "failed")
		return fmt.Errorf("send anniversary digest: %w", err)
	}
	report.Sent++
	s.metrics.IncReminder(string(KindAnniversary), "sent")
	return nil
}

func (s *Scheduler) data(c *models.Company, anniversary time.Time) templateData {
	d := templateData{
		CompanyName:        c.DisplayName(),
		RegistrationNumber: c.RegistrationNumber,
		AnniversaryDate:    anniversary.Format(s.cfg.DateFormat),
		DueDate:            anniversary.AddDate(0, 0, AnnualReturnWindow).Format(s.cfg.DateFormat),
	}
	if c.IncorporationDate != nil {
		d.IncorporationDate = c.IncorporationDate.Format(s.cfg.DateFormat)
	}
	return d
}
