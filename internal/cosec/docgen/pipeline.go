package docgen

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a step of one generation request.
type State string

const (
	StateRequested        State = "requested"
	StateTemplateResolved State = "template_resolved"
	StateContextBuilt     State = "context_built"
	StateRendered         State = "rendered"
	StateConverting       State = "converting"
	StateDownloaded       State = "downloaded"
	StatePreviewed        State = "previewed"
	StateEmailSent        State = "email_sent"
	StateFailed           State = "failed"
)

// EventProducer publishes domain events.
type EventProducer interface {
	Produce(eventType events.EventType, key string, payload interface{})
}

// Request asks for one template to be generated for one company.
type Request struct {
	CompanyID  uuid.UUID
	TemplateID uuid.UUID
	// Subject is "", SubjectAll or a director id.
	Subject string
	Action  Action
	// Archive keeps a copy of the delivered artifact under the media root.
	Archive bool
}

// Result describes what a request produced. Artifact is nil for email.
type Result struct {
	State      State
	Mode       Mode
	Artifact   *Artifact
	Recipients []string
	// FailedIn is the last state reached before a failure.
	FailedIn     State
	ArchivedPath string
}

// GeneratedEvent is the payload of a document_generated event.
type GeneratedEvent struct {
	CompanyID  uuid.UUID `json:"company_id"`
	TemplateID uuid.UUID `json:"template_id"`
	Action     Action    `json:"action"`
	Mode       Mode      `json:"mode"`
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
}

// PipelineConfig carries the pipeline settings.
type PipelineConfig struct {
	DateFormat string
	Location   *time.Location
}

// Pipeline runs generation requests from template resolution to delivery.
type Pipeline struct {
	cfg        PipelineConfig
	resolver   *Resolver
	renderer   Renderer
	converter  Converter
	dispatcher *Dispatcher
	producer   EventProducer
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewPipeline(
	cfg PipelineConfig,
	resolver *Resolver,
	renderer Renderer,
	converter Converter,
	dispatcher *Dispatcher,
	producer EventProducer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	if cfg.DateFormat == "" {
		cfg.DateFormat = "02-01-2006"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Pipeline{
		cfg:        cfg,
		resolver:   resolver,
		renderer:   renderer,
		converter:  converter,
		dispatcher: dispatcher,
		producer:   producer,
		metrics:    m,
		logger:     logger.Named("pipeline"),
		now:        time.Now,
	}
}

// Generate runs one request. Every error aborts before any delivery side
// effect, and transient files are removed on all paths.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	res := &Result{State: StateRequested, Mode: ModeSingle}
	err := p.generate(ctx, req, res)
	if err != nil {
		res.FailedIn, res.State = res.State, StateFailed
	}
	p.finish(req, res, err)
	if err != nil {
		return res, err
	}
	return res, nil
}

func (p *Pipeline) generate(ctx context.Context, req Request, res *Result) error {
	if !req.Action.Valid() {
		return fmt.Errorf("%w: %q", e.ErrUnsupportedAction, req.Action)
	}

	resolution, err := p.resolver.Resolve(ctx, req.CompanyID, req.TemplateID, req.Subject)
	if err != nil {
		return err
	}
	defer func() {
		if err := resolution.Cleanup(); err != nil {
			p.logger.Warn("Failed to remove template work dir", zap.Error(err))
		}
	}()
	res.State, res.Mode = StateTemplateResolved, resolution.Mode

	if err := CheckAction(req.Action, resolution.Batch); err != nil {
		return err
	}
	if req.Action == ActionEmail {
		res.Recipients = resolution.Company.RecipientEmails()
		if len(res.Recipients) == 0 {
			return e.ErrEmptyRecipients
		}
	}

	now := p.now().In(p.cfg.Location)
	base := BuildContext(resolution.Company, now, p.cfg.DateFormat)
	res.State = StateContextBuilt

	docs, err := p.render(resolution, base)
	if err != nil {
		return err
	}
	res.State = StateRendered

	contentType := ContentTypeDocx
	if req.Action.NeedsPDF() {
		res.State = StateConverting
		for i := range docs {
			pdf, err := p.converter.Convert(ctx, docs[i].Data)
			if err != nil {
				return fmt.Errorf("convert %s: %w", docs[i].Filename, err)
			}
			docs[i].Data = pdf
			docs[i].Filename = swapExt(docs[i].Filename, ".pdf")
		}
		contentType = ContentTypePDF
	}

	artifact, err := Package(docs, contentType, Filename(resolution.Company, resolution.Template, nil, ".zip"))
	if err != nil {
		return err
	}

	switch req.Action {
	case ActionDownload, ActionDownloadPDF:
		res.Artifact = artifact
		res.State = StateDownloaded
	case ActionPreview:
		artifact.Inline = true
		res.Artifact = artifact
		res.State = StatePreviewed
	case ActionEmail:
		if err := p.dispatcher.Email(ctx, resolution.Company, resolution.Template, res.Recipients, artifact); err != nil {
			return err
		}
		res.State = StateEmailSent
	}

	if req.Archive {
		path, err := p.dispatcher.Archive(resolution.Company, artifact, now)
		if err != nil {
			p.logger.Error("Failed to archive generated document",
				zap.Error(err),
				zap.String("company_id", req.CompanyID.String()),
			)
		}
		res.ArchivedPath = path
	}
	return nil
}

// render produces one document, or one per subject from a fresh copy of the
// base context.
func (p *Pipeline) render(r *Resolution, base Context) ([]Document, error) {
	if r.Mode == ModeSingle {
		data, err := p.renderer.Render(r.Asset, base)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", r.Template.Name, err)
		}
		return []Document{{Filename: Filename(r.Company, r.Template, nil, ".docx"), Data: data}}, nil
	}

	docs := make([]Document, 0, len(r.Subjects))
	for i := range r.Subjects {
		subject := &r.Subjects[i]
		data, err := p.renderer.Render(r.Asset, base.WithSubject(subject, p.cfg.DateFormat))
		if err != nil {
			return nil, fmt.Errorf("render %s for %s: %w", r.Template.Name, subject.FullName, err)
		}
		docs = append(docs, Document{Filename: Filename(r.Company, r.Template, subject, ".docx"), Data: data})
	}
	return docs, nil
}

func (p *Pipeline) finish(req Request, res *Result, err error) {
	result := "ok"
	fields := []zap.Field{
		zap.String("company_id", req.CompanyID.String()),
		zap.String("template_id", req.TemplateID.String()),
		zap.String("action", string(req.Action)),
		zap.String("mode", string(res.Mode)),
		zap.String("state", string(res.State)),
	}
	ev := GeneratedEvent{
		CompanyID:  req.CompanyID,
		TemplateID: req.TemplateID,
		Action:     req.Action,
		Mode:       res.Mode,
		State:      res.State,
	}
	if err != nil {
		result = "error"
		ev.Error = err.Error()
		fields = append(fields, zap.String("failed_in", string(res.FailedIn)), zap.Error(err))
		if ce, ok := e.AsConversionError(err); ok {
			fields = append(fields, zap.String("engine_output", ce.Output))
		}
		p.logger.Warn("Document generation failed", fields...)
	} else {
		p.logger.Info("Document generated", fields...)
	}
	p.metrics.IncGeneration(string(req.Action), string(res.Mode), result)
	if p.producer != nil {
		p.producer.Produce(events.DocumentGenerated, req.CompanyID.String(), ev)
	}
}

func swapExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
