package docgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode is how many documents one request produces.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModePerSubject Mode = "per_subject"
)

// SubjectAll selects every director of the company.
const SubjectAll = "all"

// maxTemplateBytes caps a fetched template.
const maxTemplateBytes = 32 << 20

// Store is the slice of the repository the pipeline reads.
type Store interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetDocumentTemplate(ctx context.Context, id uuid.UUID) (*models.DocumentTemplate, error)
	GetEmailTemplateByName(ctx context.Context, name string) (*models.EmailTemplate, error)
}

// Resolution is a located template together with the records it will be
// rendered against. Cleanup must be called once the request is done.
type Resolution struct {
	Company  *models.Company
	Template *models.DocumentTemplate
	Asset    []byte
	// Path is the template on local disk: the configured file, or the
	// transient copy of a remote one.
	Path     string
	Mode     Mode
	Subjects []models.Director
	// Batch is set when more than one artifact may be produced, so the
	// results must be packaged together.
	Batch bool

	workDir string
}

// Cleanup removes any transient files created for the resolution.
func (r *Resolution) Cleanup() error {
	if r == nil || r.workDir == "" {
		return nil
	}
	err := os.RemoveAll(r.workDir)
	r.workDir = ""
	return err
}

// Resolver locates template assets and decides the generation mode.
type Resolver struct {
	store        Store
	templatesDir string
	workDir      string
	client       *http.Client
	logger       *zap.Logger
}

func NewResolver(store Store, templatesDir, workDir string, fetchTimeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:        store,
		templatesDir: templatesDir,
		workDir:      workDir,
		client:       &http.Client{Timeout: fetchTimeout},
		logger:       logger.Named("resolver"),
	}
}

// Resolve loads the company and template, selects the subjects and makes the
// template asset available locally. subject is "" (use the template flag),
// SubjectAll, or a director id.
func (r *Resolver) Resolve(ctx context.Context, companyID, templateID uuid.UUID, subject string) (*Resolution, error) {
	tpl, err := r.store.GetDocumentTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", templateID, err)
	}
	company, err := r.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("company %s: %w", companyID, err)
	}

	res := &Resolution{Company: company, Template: tpl, Mode: ModeSingle}
	if err := selectSubjects(res, subject); err != nil {
		return nil, err
	}

	if isRemote(tpl.Location) {
		if err := r.fetch(ctx, res); err != nil {
			return nil, err
		}
	} else {
		path, err := r.localPath(tpl.Location)
		if err != nil {
			return nil, err
		}
		asset, err := os.ReadFile(path)
		if err != nil {
			// Report the location as registered; the host path stays in the logs.
			r.logger.Warn("Failed to read template", zap.String("path", path), zap.Error(err))
			var pe *fs.PathError
			if errors.As(err, &pe) {
				err = pe.Err
			}
			return nil, fmt.Errorf("%w: read %s: %v", e.ErrRetrieval, tpl.Location, err)
		}
		res.Asset, res.Path = asset, path
	}

	r.logger.Debug("Template resolved",
		zap.String("company_id", companyID.String()),
		zap.String("template_id", templateID.String()),
		zap.String("mode", string(res.Mode)),
		zap.Int("subjects", len(res.Subjects)),
	)
	return res, nil
}

func selectSubjects(res *Resolution, subject string) error {
	directors := res.Company.Directors
	switch subject = strings.TrimSpace(subject); subject {
	case "":
		if !res.Template.PerDirector {
			return nil
		}
		fallthrough
	case SubjectAll:
		if len(directors) == 0 {
			return fmt.Errorf("%w: company has no directors to generate for", e.ErrInvalidInput)
		}
		res.Mode = ModePerSubject
		res.Subjects = directors
		res.Batch = true
		return nil
	}

	id, err := uuid.Parse(subject)
	if err != nil {
		return fmt.Errorf("%w: subject %q is neither %q nor a director id", e.ErrInvalidInput, subject, SubjectAll)
	}
	for _, d := range directors {
		if d.ID == id {
			res.Mode = ModePerSubject
			res.Subjects = []models.Director{d}
			return nil
		}
	}
	return fmt.Errorf("director %s of company %s: %w", id, res.Company.ID, e.ErrNotFound)
}

func isRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// localPath resolves every local location inside the templates directory.
// Absolute locations are rejected rather than read from the host.
func (r *Resolver) localPath(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("%w: template has no location", e.ErrRetrieval)
	}
	if filepath.IsAbs(location) || strings.HasPrefix(location, "/") {
		return "", fmt.Errorf("%w: template location %q is outside the templates directory", e.ErrRetrieval, location)
	}
	return filepath.Join(r.templatesDir, filepath.Clean(string(filepath.Separator)+location)), nil
}

// fetch downloads the template into a per-request work directory. The
// directory is removed again on every failure path.
func (r *Resolver) fetch(ctx context.Context, res *Resolution) (err error) {
	dir, err := os.MkdirTemp(r.workDir, "template-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.Template.Location, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", e.ErrRetrieval, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", e.ErrRetrieval, res.Template.Location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned %s", e.ErrRetrieval, res.Template.Location, resp.Status)
	}
	asset, err := io.ReadAll(io.LimitReader(resp.Body, maxTemplateBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", e.ErrRetrieval, err)
	}
	if len(asset) == 0 {
		return fmt.Errorf("%w: GET %s returned an empty body", e.ErrRetrieval, res.Template.Location)
	}
	if len(asset) > maxTemplateBytes {
		return fmt.Errorf("%w: template larger than %d bytes", e.ErrRetrieval, maxTemplateBytes)
	}

	path := filepath.Join(dir, uuid.NewString()+".docx")
	if err := os.WriteFile(path, asset, 0o600); err != nil {
		return fmt.Errorf("write template copy: %w", err)
	}
	res.Asset, res.Path, res.workDir = asset, path, dir
	return nil
}
