package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/cosec/internal/cosec/db"
	"github.com/gartstein/cosec/internal/cosec/db/dbtest"
	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/gartstein/cosec/internal/cosec/metrics"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func seedCompany(t *testing.T, repo *db.Repository, name string, inc *time.Time, emails ...string) *models.Company {
	t.Helper()
	ctx := context.Background()
	c := &models.Company{
		ID:                 uuid.New(),
		Name:               name,
		RegistrationNumber: uuid.NewString()[:12],
		IncorporationDate:  inc,
		Branch:             models.BranchHQ,
		NatureOfBusiness1:  "TRADING",
	}
	require.NoError(t, repo.CreateCompany(ctx, c))
	for i, email := range emails {
		require.NoError(t, repo.CreateDirector(ctx, &models.Director{
			ID:        uuid.New(),
			CompanyID: c.ID,
			FullName:  name + " DIRECTOR " + string(rune('A'+i)),
			Email:     email,
		}))
	}
	return c
}

func newTestScheduler(t *testing.T, repo *db.Repository, n Notifier, today time.Time) (*Scheduler, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	s := NewScheduler(repo, n, Config{
		StaffRecipients: []string{"staff@example.com", "STAFF@example.com"},
		Location:        time.UTC,
		DateFormat:      "02-01-2006",
	}, m, zaptest.NewLogger(t))
	s.now = func() time.Time { return today }
	return s, m
}

func TestScheduler_Run(t *testing.T) {
	repo := dbtest.NewRepository(t)
	march15 := date(2020, time.March, 15)
	june1 := date(2018, time.June, 1)
	seedCompany(t, repo, "DUE SDN BHD", &march15, "a@example.com", "A@example.com", "b@example.com")
	seedCompany(t, repo, "NOT DUE SDN BHD", &june1, "c@example.com")
	seedCompany(t, repo, "NO DATE SDN BHD", nil, "d@example.com")
	seedCompany(t, repo, "NO EMAIL SDN BHD", &march15)

	n := &recordingNotifier{}
	s, m := newTestScheduler(t, repo, n, time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC))

	report, err := s.Run(context.Background(), KindSecond, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, n.sent, 1)

	got := n.sent[0]
	assert.Equal(t, KindSecond, got.Kind)
	assert.Equal(t, "DUE SDN BHD", got.CompanyName)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, got.Recipients)
	assert.Contains(t, got.Subject, "DUE SDN BHD")
	assert.Contains(t, got.Body, "15-03-2026")
	assert.Contains(t, got.Body, "14-04-2026", "due date is 30 days after the anniversary")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reminders.WithLabelValues("second", "sent")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Reminders.WithLabelValues("second", "skipped")))
}

func TestScheduler_Force(t *testing.T) {
	repo := dbtest.NewRepository(t)
	june1 := date(2018, time.June, 1)
	seedCompany(t, repo, "NOT DUE SDN BHD", &june1, "c@example.com")
	seedCompany(t, repo, "NO DATE SDN BHD", nil, "d@example.com")

	n := &recordingNotifier{}
	s, _ := newTestScheduler(t, repo, n, date(2026, time.March, 15))

	report, err := s.Run(context.Background(), KindThird, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0].Body, "01-06-2026")
}

func TestScheduler_UsesRegisteredTemplate(t *testing.T) {
	repo := dbtest.NewRepository(t)
	march15 := date(2020, time.March, 15)
	seedCompany(t, repo, "DUE SDN BHD", &march15, "a@example.com")
	require.NoError(t, repo.CreateEmailTemplate(context.Background(), &models.EmailTemplate{
		ID:      uuid.New(),
		Name:    "reminder_first",
		Subject: "Heads up, {{.CompanyName}}",
		Body:    "Anniversary {{.AnniversaryDate}}",
	}))

	n := &recordingNotifier{}
	s, _ := newTestScheduler(t, repo, n, date(2026, time.February, 13))

	_, err := s.Run(context.Background(), KindFirst, false)
	require.NoError(t, err)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "Heads up, DUE SDN BHD", n.sent[0].Subject)
	assert.Equal(t, "Anniversary 15-03-2026", n.sent[0].Body)
}

func TestScheduler_NotifierFailure(t *testing.T) {
	repo := dbtest.NewRepository(t)
	march15 := date(2020, time.March, 15)
	seedCompany(t, repo, "DUE SDN BHD", &march15, "a@example.com")

	n := &recordingNotifier{err: errors.New("smtp down")}
	s, m := newTestScheduler(t, repo, n, date(2026, time.March, 15))

	report, err := s.Run(context.Background(), KindCompliance, false)
	require.NoError(t, err, "one failed company does not abort the run")
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reminders.WithLabelValues("compliance", "failed")))
}

func TestScheduler_AnniversaryDigest(t *testing.T) {
	repo := dbtest.NewRepository(t)
	today := date(2026, time.March, 15)
	march15 := date(2020, time.March, 15)
	march22 := date(2019, time.March, 22)
	june1 := date(2018, time.June, 1)
	seedCompany(t, repo, "TODAY SDN BHD", &march15)
	seedCompany(t, repo, "SOON SDN BHD", &march22)
	seedCompany(t, repo, "LATER SDN BHD", &june1)

	n := &recordingNotifier{}
	s, _ := newTestScheduler(t, repo, n, today)

	report, err := s.Run(context.Background(), KindAnniversary, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, n.sent, 1)

	digest := n.sent[0]
	assert.Equal(t, []string{"staff@example.com"}, digest.Recipients)
	assert.Contains(t, digest.Body, "TODAY: TODAY SDN BHD")
	assert.Contains(t, digest.Body, "UPCOMING: SOON SDN BHD")
	assert.NotContains(t, digest.Body, "LATER SDN BHD")
}

func TestScheduler_AnniversaryDigestNothingDue(t *testing.T) {
	repo := dbtest.NewRepository(t)
	june1 := date(2018, time.June, 1)
	seedCompany(t, repo, "LATER SDN BHD", &june1)

	n := &recordingNotifier{}
	s, _ := newTestScheduler(t, repo, n, date(2026, time.March, 15))

	report, err := s.Run(context.Background(), KindAnniversary, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Empty(t, n.sent)
}

func TestScheduler_UnknownKind(t *testing.T) {
	s, _ := newTestScheduler(t, dbtest.NewRepository(t), &recordingNotifier{}, time.Now())
	_, err := s.Run(context.Background(), Kind("weekly"), false)
	assert.Error(t, err)
}

type mockTransport struct {
	sent []*mailer.Message
}

func (m *mockTransport) Send(_ context.Context, msg *mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type mockProducer struct {
	eventType events.EventType
	key       string
	payload   interface{}
}

func (m *mockProducer) Produce(eventType events.EventType, key string, payload interface{}) {
	m.eventType, m.key, m.payload = eventType, key, payload
}

func TestMailNotifier(t *testing.T) {
	tr := &mockTransport{}
	n := NewMailNotifier(tr, "secretarial@example.com")

	require.NoError(t, n.Notify(context.Background(), Notification{Recipients: []string{"a@example.com"}, Subject: "s", Body: "b"}))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "secretarial@example.com", tr.sent[0].From)
	assert.Empty(t, tr.sent[0].Attachments)

	assert.Error(t, n.Notify(context.Background(), Notification{}))
}

func TestQueueNotifierRoundTrip(t *testing.T) {
	p := &mockProducer{}
	companyID := uuid.New()
	n := Notification{Kind: KindSecond, CompanyID: companyID, Recipients: []string{"a@example.com"}, Subject: "s", Body: "b"}

	require.NoError(t, NewQueueNotifier(p).Notify(context.Background(), n))
	assert.Equal(t, events.ReminderRequested, p.eventType)
	assert.Equal(t, companyID.String(), p.key)

	raw, err := json.Marshal(p.payload)
	require.NoError(t, err)

	delivered := &recordingNotifier{}
	handle := EventHandler(delivered, zaptest.NewLogger(t))
	require.NoError(t, handle(context.Background(), events.Event{Type: events.ReminderRequested, Key: p.key, Payload: raw}))
	require.Len(t, delivered.sent, 1)
	assert.Equal(t, n, delivered.sent[0])
}

func TestEventHandler(t *testing.T) {
	delivered := &recordingNotifier{}
	handle := EventHandler(delivered, zaptest.NewLogger(t))

	assert.NoError(t, handle(context.Background(), events.Event{Type: events.CompanyCreated}))
	assert.NoError(t, handle(context.Background(), events.Event{Type: events.ReminderRequested, Payload: json.RawMessage(`"nope"`)}))
	assert.Empty(t, delivered.sent)

	delivered.err = errors.New("smtp down")
	raw, _ := json.Marshal(Notification{Kind: KindFirst, Recipients: []string{"a@example.com"}})
	err := handle(context.Background(), events.Event{Type: events.ReminderRequested, Payload: raw})
	require.Error(t, err)
	var permanent *backoff.PermanentError
	assert.False(t, errors.As(err, &permanent), "transient failures are retried")

	delivered.err = e.ErrEmptyRecipients
	err = handle(context.Background(), events.Event{Type: events.ReminderRequested, Payload: raw})
	assert.True(t, errors.As(err, &permanent), "a reminder without recipients is dropped")
	assert.ErrorIs(t, err, e.ErrEmptyRecipients)
}
