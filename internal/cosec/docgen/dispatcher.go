package docgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/gartstein/cosec/internal/pkg/utils"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// Action is what the caller wants done with the generated document.
type Action string

const (
	ActionDownload    Action = "download"
	ActionDownloadPDF Action = "download_pdf"
	ActionPreview     Action = "preview"
	ActionEmail       Action = "email"
)

func (a Action) Valid() bool {
	switch a {
	case ActionDownload, ActionDownloadPDF, ActionPreview, ActionEmail:
		return true
	}
	return false
}

// NeedsPDF reports whether the action delivers a converted document.
func (a Action) NeedsPDF() bool {
	return a != ActionDownload
}

// Content types of the delivered artifacts.
const (
	ContentTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypePDF  = "application/pdf"
	ContentTypeZip  = "application/zip"
)

// Artifact is a file ready to hand to the caller.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	// Inline asks the client to display rather than save the file.
	Inline bool
}

// Document is one rendered output before packaging.
type Document struct {
	Filename string
	Data     []byte
}

const defaultEmailSubject = "{{.TemplateName}} - {{.CompanyName}}"

const defaultEmailBody = `Dear Sir/Madam,

Please find attached {{.TemplateName}} for {{.CompanyName}} ({{.RegistrationNumber}}).

Regards,
Company Secretarial Department`

// Dispatcher routes generated artifacts to their sink.
type Dispatcher struct {
	store     Store
	transport mailer.Transport
	from      string
	mediaRoot string
	logger    *zap.Logger
}

func NewDispatcher(store Store, transport mailer.Transport, from, mediaRoot string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		transport: transport,
		from:      from,
		mediaRoot: mediaRoot,
		logger:    logger.Named("dispatcher"),
	}
}

// CheckAction rejects action/mode combinations that have no defined
// delivery. Batches can only be downloaded, as a single archive.
func CheckAction(action Action, batch bool) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", e.ErrUnsupportedAction, action)
	}
	if batch && (action == ActionPreview || action == ActionEmail) {
		return fmt.Errorf("%w: %s is not available for per-director batches, download them instead", e.ErrUnsupportedAction, action)
	}
	return nil
}

// Filename derives a URL- and filesystem-safe name from the company and
// template names.
func Filename(company *models.Company, tpl *models.DocumentTemplate, subject *models.Director, ext string) string {
	parts := []string{company.DisplayName(), tpl.Name}
	if subject != nil {
		parts = append(parts, subject.FullName)
	}
	return utils.Slugify(parts...) + ext
}

// Package returns docs as a single artifact: the document itself when there
// is one, a zip archive otherwise.
func Package(docs []Document, contentType, archiveName string) (*Artifact, error) {
	switch len(docs) {
	case 0:
		return nil, fmt.Errorf("%w: nothing to deliver", e.ErrInvalidInput)
	case 1:
		return &Artifact{Filename: docs[0].Filename, ContentType: contentType, Data: docs[0].Data}, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		name := entryName(d.Filename, used)
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", name, err)
		}
		if _, err := w.Write(d.Data); err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return &Artifact{Filename: archiveName, ContentType: ContentTypeZip, Data: buf.Bytes()}, nil
}

// entryName returns name, or name with the first free numeric suffix when an
// entry of that name was already written, and marks the result as used.
func entryName(name string, used map[string]struct{}) string {
	candidate := name
	ext := filepath.Ext(name)
	for n := 2; ; n++ {
		if _, taken := used[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s-%d%s", name[:len(name)-len(ext)], n, ext)
	}
	used[candidate] = struct{}{}
	return candidate
}

// Email sends artifact to recipients using the document delivery email
// template, or a built-in text when none is registered.
func (d *Dispatcher) Email(ctx context.Context, company *models.Company, tpl *models.DocumentTemplate, recipients []string, artifact *Artifact) error {
	if len(recipients) == 0 {
		return e.ErrEmptyRecipients
	}
	subject, body := defaultEmailSubject, defaultEmailBody
	et, err := d.store.GetEmailTemplateByName(ctx, models.EmailTemplateDocument)
	switch {
	case err == nil:
		subject, body = et.Subject, et.Body
	case !errors.Is(err, e.ErrNotFound):
		return fmt.Errorf("load email template: %w", err)
	}

	subject, body, err = mailer.Render(subject, body, map[string]string{
		"CompanyName":        company.DisplayName(),
		"RegistrationNumber": company.RegistrationNumber,
		"TemplateName":       tpl.Name,
		"Filename":           artifact.Filename,
	})
	if err != nil {
		return err
	}

	msg := &mailer.Message{
		From:    d.from,
		To:      recipients,
		Subject: subject,
		Body:    body,
		Attachments: []mailer.Attachment{
			{Filename: artifact.Filename, ContentType: artifact.ContentType, Data: artifact.Data},
		},
	}
	if err := d.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send document email: %w", err)
	}
	d.logger.Info("Document emailed",
		zap.String("company_id", company.ID.String()),
		zap.String("template_id", tpl.ID.String()),
		zap.Int("recipients", len(recipients)),
	)
	return nil
}

// Archive writes artifact under <media root>/<company slug>-<YYYYMMDD>/ and
// returns the path written.
func (d *Dispatcher) Archive(company *models.Company, artifact *Artifact, now time.Time) (string, error) {
	if d.mediaRoot == "" {
		return "", fmt.Errorf("%w: no media root configured", e.ErrInvalidInput)
	}
	dir := filepath.Join(d.mediaRoot, utils.Slugify(company.DisplayName())+"-"+now.Format("20060102"))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(dir, artifact.Filename)
	if err := os.WriteFile(path, artifact.Data, 0o640); err != nil {
		return "", fmt.Errorf("archive %s: %w", artifact.Filename, err)
	}
	return path, nil
}
