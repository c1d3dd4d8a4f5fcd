package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gartstein/cosec/internal/cosec/auth"
	"github.com/gartstein/cosec/internal/cosec/controller"
	"github.com/gartstein/cosec/internal/cosec/docgen"
	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// RecordController is the record service the HTTP handlers invoke.
type RecordController interface {
	CreateCompany(ctx context.Context, company *models.Company) (*models.Company, error)
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	ListCompanies(ctx context.Context, filter models.ListFilter) ([]models.Company, error)
	UpdateCompany(ctx context.Context, update *models.CompanyUpdate) (*models.Company, error)
	DeleteCompany(ctx context.Context, id uuid.UUID) error
	AddDirector(ctx context.Context, director *models.Director) (*models.Director, error)
	UpdateDirector(ctx context.Context, update *models.DirectorUpdate) (*models.Director, error)
	AddShareholder(ctx context.Context, sh *models.Shareholder) (*models.Shareholder, error)
	SetContactPerson(ctx context.Context, cp *models.ContactPerson) (*models.ContactPerson, error)
	SetComplianceInformation(ctx context.Context, info *models.ComplianceInformation) (*models.ComplianceInformation, error)
	CreateDocumentTemplate(ctx context.Context, tpl *models.DocumentTemplate) (*models.DocumentTemplate, error)
	ListDocumentTemplates(ctx context.Context) ([]models.TemplateCategory, error)
	CreateEmailTemplate(ctx context.Context, tpl *models.EmailTemplate) (*models.EmailTemplate, error)
	TemplateSelection(ctx context.Context, companyID uuid.UUID) (*controller.Selection, error)
	ExportCompanies(ctx context.Context, w io.Writer) error
	ImportCompanies(ctx context.Context, r io.Reader) (*controller.ImportReport, error)
	ImportDirectors(ctx context.Context, companyID uuid.UUID, r io.Reader) (*controller.ImportReport, error)
}

// DocumentGenerator runs one generation request.
type DocumentGenerator interface {
	Generate(ctx context.Context, req docgen.Request) (*docgen.Result, error)
}

// API serves the REST surface on a gateway mux.
type API struct {
	records RecordController
	docs    DocumentGenerator
	codec   runtime.Marshaler
	logger  *zap.Logger
}

// NewAPI constructs the REST handlers.
func NewAPI(records RecordController, docs DocumentGenerator, logger *zap.Logger) *API {
	return &API{
		records: records,
		docs:    docs,
		codec:   &runtime.JSONBuiltin{},
		logger:  logger.Named("http_handler"),
	}
}

type route struct {
	method, pattern string
	handler         runtime.HandlerFunc
}

// Register mounts every route on mux.
func (a *API) Register(mux *runtime.ServeMux) error {
	routes := []route{
		{http.MethodGet, "/v1/companies", a.listCompanies},
		{http.MethodPost, "/v1/companies", a.createCompany},
		{http.MethodGet, "/v1/companies/{company_id}", a.getCompany},
		{http.MethodPatch, "/v1/companies/{company_id}", a.updateCompany},
		{http.MethodDelete, "/v1/companies/{company_id}", a.deleteCompany},
		{http.MethodPost, "/v1/companies/{company_id}/directors", a.addDirector},
		{http.MethodPatch, "/v1/companies/{company_id}/directors/{director_id}", a.updateDirector},
		{http.MethodPost, "/v1/companies/{company_id}/directors/import", a.importDirectors},
		{http.MethodPost, "/v1/companies/{company_id}/shareholders", a.addShareholder},
		{http.MethodPut, "/v1/companies/{company_id}/contact", a.setContact},
		{http.MethodPut, "/v1/companies/{company_id}/compliance", a.setCompliance},
		{http.MethodGet, "/v1/companies/{company_id}/templates", a.selectTemplate},
		{http.MethodGet, "/v1/companies/{company_id}/documents/{template_id}", a.generateDocument},
		{http.MethodGet, "/v1/companies/{company_id}/documents/{template_id}/pdf", a.downloadPDF},
		{http.MethodGet, "/v1/templates", a.listDocumentTemplates},
		{http.MethodPost, "/v1/templates", a.createDocumentTemplate},
		{http.MethodPost, "/v1/email-templates", a.createEmailTemplate},
		{http.MethodGet, "/v1/exports/companies", a.exportCompanies},
		{http.MethodPost, "/v1/imports/companies", a.importCompanies},
		{http.MethodGet, "/v1/imports/directors/template", a.directorImportTemplate},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := a.codec.Marshal(v)
	if err != nil {
		a.logger.Error("Failed to encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", a.codec.ContentType(v))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		a.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status, msg := a.mapServiceError(err)
	a.writeJSON(w, status, errorBody{Error: msg})
}

func (a *API) decode(r *http.Request, v interface{}) error {
	if err := a.codec.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", e.ErrInvalidInput, err)
	}
	return nil
}

func pathID(params map[string]string, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(params[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", e.ErrInvalidInput, name)
	}
	return id, nil
}

func (a *API) listCompanies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	filter := models.ListFilter{Branch: models.Branch(q.Get("branch")), Search: q.Get("search")}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				a.writeError(w, fmt.Errorf("%w: %s must be a number", e.ErrInvalidInput, name))
				return
			}
			*dst = n
		}
	}
	companies, err := a.records.ListCompanies(r.Context(), filter)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, companies)
}

func (a *API) createCompany(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var company models.Company
	if err := a.decode(r, &company); err != nil {
		a.writeError(w, err)
		return
	}
	created, err := a.records.CreateCompany(r.Context(), &company)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, created)
}

func (a *API) getCompany(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	company, err := a.records.GetCompany(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, company)
}

func (a *API) updateCompany(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	var patch companyPatch
	if err := a.decode(r, &patch); err != nil {
		a.writeError(w, err)
		return
	}
	updated, err := a.records.UpdateCompany(r.Context(), patch.toUpdate(id))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteCompany(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.records.DeleteCompany(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addDirector(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	var director models.Director
	if err := a.decode(r, &director); err != nil {
		a.writeError(w, err)
		return
	}
	director.CompanyID = id
	created, err := a.records.AddDirector(r.Context(), &director)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, created)
}

func (a *API) updateDirector(w http.ResponseWriter, r *http.Request, params map[string]string) {
	companyID, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	id, err := pathID(params, "director_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	var patch directorPatch
	if err := a.decode(r, &patch); err != nil {
		a.writeError(w, err)
		return
	}
	updated, err := a.records.UpdateDirector(r.Context(), patch.toUpdate(id))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if updated.CompanyID != companyID {
		a.writeError(w, fmt.Errorf("director %w", e.ErrNotFound))
		return
	}
	a.writeJSON(w, http.StatusOK, updated)
}

func (a *API) addShareholder(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	var sh models.Shareholder
	if err := a.decode(r, &sh); err != nil {
		a.writeError(w, err)
		return
	}
	sh.CompanyID = id
	created, err := a.records.AddShareholder(r.Context(), &sh)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, created)
}

func (a *API) setContact(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	var cp models.ContactPerson
	if err := a.decode(r, &cp); err != nil {
		a.writeError(w, err)
		return
	}
	cp.CompanyID = id
	saved, err := a.records.SetContactPerson(r.Context(), &cp)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, saved)
}

func (a *API) setCompliance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	var info models.ComplianceInformation
	if err := a.decode(r, &info); err != nil {
		a.writeError(w, err)
		return
	}
	info.CompanyID = id
	saved, err := a.records.SetComplianceInformation(r.Context(), &info)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, saved)
}

func (a *API) selectTemplate(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	sel, err := a.records.TemplateSelection(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sel)
}

func (a *API) createDocumentTemplate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var tpl models.DocumentTemplate
	if err := a.decode(r, &tpl); err != nil {
		a.writeError(w, err)
		return
	}
	created, err := a.records.CreateDocumentTemplate(r.Context(), &tpl)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, created)
}

func (a *API) listDocumentTemplates(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	categories, err := a.records.ListDocumentTemplates(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, categories)
}

func (a *API) createEmailTemplate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var tpl models.EmailTemplate
	if err := a.decode(r, &tpl); err != nil {
		a.writeError(w, err)
		return
	}
	created, err := a.records.CreateEmailTemplate(r.Context(), &tpl)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, created)
}

const (
	contentTypeCSV = "text/csv"
	maxSheetBytes  = 10 << 20
)

func (a *API) writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		a.logger.Debug("Failed to write file", zap.Error(err))
	}
}

// sheet returns the uploaded CSV: the "file" part of a multipart form, or
// the raw request body.
func sheet(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSheetBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: upload needs a file part: %v", e.ErrInvalidInput, err)
	}
	return f, nil
}

func (a *API) exportCompanies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var buf bytes.Buffer
	if err := a.records.ExportCompanies(r.Context(), &buf); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeFile(w, contentTypeCSV, "companies.csv", buf.Bytes())
}

func (a *API) importCompanies(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	body, err := sheet(w, r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer body.Close()
	report, err := a.records.ImportCompanies(r.Context(), body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}

func (a *API) directorImportTemplate(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	a.writeFile(w, contentTypeCSV, "director_import_template.csv", controller.DirectorImportTemplate())
}

func (a *API) importDirectors(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	body, err := sheet(w, r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer body.Close()
	report, err := a.records.ImportDirectors(r.Context(), id, body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, report)
}

// queryActions maps the action query parameter to a pipeline action.
var queryActions = map[string]docgen.Action{
	"":         docgen.ActionDownload,
	"generate": docgen.ActionDownload,
	"preview":  docgen.ActionPreview,
	"email":    docgen.ActionEmail,
}

func (a *API) generateDocument(w http.ResponseWriter, r *http.Request, params map[string]string) {
	action, ok := queryActions[r.URL.Query().Get("action")]
	if !ok {
		a.writeError(w, fmt.Errorf("%w: %q", e.ErrUnsupportedAction, r.URL.Query().Get("action")))
		return
	}
	a.serveDocument(w, r, params, action)
}

func (a *API) downloadPDF(w http.ResponseWriter, r *http.Request, params map[string]string) {
	a.serveDocument(w, r, params, docgen.ActionDownloadPDF)
}

// emailResult is the response of an email action.
type emailResult struct {
	State      docgen.State `json:"state"`
	Recipients []string     `json:"recipients"`
}

func (a *API) serveDocument(w http.ResponseWriter, r *http.Request, params map[string]string, action docgen.Action) {
	companyID, err := pathID(params, "company_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	templateID, err := pathID(params, "template_id")
	if err != nil {
		a.writeError(w, err)
		return
	}
	q := r.URL.Query()
	archive, _ := strconv.ParseBool(q.Get("archive"))
	req := docgen.Request{
		CompanyID:  companyID,
		TemplateID: templateID,
		Subject:    q.Get("subject"),
		Action:     action,
		Archive:    archive,
	}

	user, _ := auth.Subject(r.Context())
	a.logger.Debug("Document requested",
		zap.String("user", user),
		zap.String("company_id", companyID.String()),
		zap.String("template_id", templateID.String()),
		zap.String("action", string(action)),
	)

	res, err := a.docs.Generate(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if res.Artifact == nil {
		a.writeJSON(w, http.StatusOK, emailResult{State: res.State, Recipients: res.Recipients})
		return
	}

	art := res.Artifact
	disposition := "attachment"
	if art.Inline {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": art.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		a.logger.Debug("Failed to write document", zap.Error(err))
	}
}
