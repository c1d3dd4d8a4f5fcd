// Package mailer sends outbound email, optionally with binary attachments.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Attachment is a binary file carried by a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a plain-text email.
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Transport delivers messages.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// Config describes the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// SMTPTransport sends through an SMTP relay, dialling once per message.
type SMTPTransport struct {
	cfg    Config
	logger *zap.Logger
}

func NewSMTPTransport(cfg Config, logger *zap.Logger) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, logger: logger.Named("smtp")}
}

func (t *SMTPTransport) client() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(t.cfg.Port)}
	if t.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}
	return mail.NewClient(t.cfg.Host, opts...)
}

func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	m, err := Build(msg)
	if err != nil {
		return err
	}
	c, err := t.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	t.logger.Info("Email sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

// Build converts msg into a MIME message.
func Build(msg *Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, a := range msg.Attachments {
		m.AttachReadSeeker(a.Filename, bytes.NewReader(a.Data),
			mail.WithFileContentType(mail.ContentType(a.ContentType)))
	}
	return m, nil
}

// LogTransport logs messages instead of sending them. It stands in when no
// SMTP host is configured.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger.Named("mail_log")}
}

func (t *LogTransport) Send(_ context.Context, msg *Message) error {
	t.logger.Info("Email not sent, no SMTP host configured",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

// Render executes subject and body as text templates against data.
func Render(subject, body string, data interface{}) (string, string, error) {
	s, err := execute("subject", subject, data)
	if err != nil {
		return "", "", err
	}
	b, err := execute("body", body, data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(s), strings.TrimSpace(b), nil
}

// Validate reports whether subject and body parse as text templates.
func Validate(subject, body string) error {
	if _, err := template.New("subject").Parse(subject); err != nil {
		return fmt.Errorf("parse subject template: %w", err)
	}
	if _, err := template.New("body").Parse(body); err != nil {
		return fmt.Errorf("parse body template: %w", err)
	}
	return nil
}

func execute(name, text string, data interface{}) (string, error) {
	tpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}
