package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gartstein/cosec/internal/cosec/auth"
	"github.com/gartstein/cosec/internal/cosec/controller"
	"github.com/gartstein/cosec/internal/cosec/docgen"
	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

// fakeRecords implements RecordController. Unset funcs panic.
type fakeRecords struct {
	RecordController
	createCompany   func(context.Context, *models.Company) (*models.Company, error)
	getCompany      func(context.Context, uuid.UUID) (*models.Company, error)
	listCompanies   func(context.Context, models.ListFilter) ([]models.Company, error)
	updateCompany   func(context.Context, *models.CompanyUpdate) (*models.Company, error)
	deleteCompany   func(context.Context, uuid.UUID) error
	addDirector     func(context.Context, *models.Director) (*models.Director, error)
	templateSelect  func(context.Context, uuid.UUID) (*controller.Selection, error)
	exportCompanies func(context.Context, io.Writer) error
	importCompanies func(context.Context, io.Reader) (*controller.ImportReport, error)
	importDirectors func(context.Context, uuid.UUID, io.Reader) (*controller.ImportReport, error)
}

func (f *fakeRecords) CreateCompany(ctx context.Context, c *models.Company) (*models.Company, error) {
	return f.createCompany(ctx, c)
}

func (f *fakeRecords) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return f.getCompany(ctx, id)
}

func (f *fakeRecords) ListCompanies(ctx context.Context, filter models.ListFilter) ([]models.Company, error) {
	return f.listCompanies(ctx, filter)
}

func (f *fakeRecords) UpdateCompany(ctx context.Context, u *models.CompanyUpdate) (*models.Company, error) {
	return f.updateCompany(ctx, u)
}

func (f *fakeRecords) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	return f.deleteCompany(ctx, id)
}

func (f *fakeRecords) AddDirector(ctx context.Context, d *models.Director) (*models.Director, error) {
	return f.addDirector(ctx, d)
}

func (f *fakeRecords) TemplateSelection(ctx context.Context, id uuid.UUID) (*controller.Selection, error) {
	return f.templateSelect(ctx, id)
}

func (f *fakeRecords) ExportCompanies(ctx context.Context, w io.Writer) error {
	return f.exportCompanies(ctx, w)
}

func (f *fakeRecords) ImportCompanies(ctx context.Context, r io.Reader) (*controller.ImportReport, error) {
	return f.importCompanies(ctx, r)
}

func (f *fakeRecords) ImportDirectors(ctx context.Context, id uuid.UUID, r io.Reader) (*controller.ImportReport, error) {
	return f.importDirectors(ctx, id, r)
}

type fakeGenerator struct {
	requests []docgen.Request
	result   *docgen.Result
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, req docgen.Request) (*docgen.Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func newTestHandler(t *testing.T, records RecordController, docs DocumentGenerator) http.Handler {
	t.Helper()
	mux := runtime.NewServeMux()
	require.NoError(t, NewAPI(records, docs, zaptest.NewLogger(t)).Register(mux))
	return auth.HTTPMiddleware(mux, testSecret)
}

func do(t *testing.T, h http.Handler, method, target, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if authorized {
		token, err := auth.GenerateToken("staff@example.com", testSecret, auth.DefaultTTL)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestCreateCompany(t *testing.T) {
	records := &fakeRecords{
		createCompany: func(_ context.Context, c *models.Company) (*models.Company, error) {
			if c.RegistrationNumber == "DUP" {
				return nil, e.ErrDuplicateRegistration
			}
			c.ID = uuid.New()
			return c, nil
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodPost, "/v1/companies", `{"name":"Example","registration_number":"1-X"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "writes need a token")

	rec = do(t, h, http.MethodPost, "/v1/companies", `{"name":"Example","registration_number":"1-X"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Example", got.Name)
	assert.NotEqual(t, uuid.Nil, got.ID)

	rec = do(t, h, http.MethodPost, "/v1/companies", `{"name":"Example","registration_number":"DUP"}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/companies", `{not json`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndListCompanies(t *testing.T) {
	id := uuid.New()
	var filter models.ListFilter
	records := &fakeRecords{
		getCompany: func(_ context.Context, got uuid.UUID) (*models.Company, error) {
			if got != id {
				return nil, e.ErrNotFound
			}
			return &models.Company{ID: id, Name: "EXAMPLE"}, nil
		},
		listCompanies: func(_ context.Context, f models.ListFilter) ([]models.Company, error) {
			filter = f
			return []models.Company{{ID: id}}, nil
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodGet, "/v1/companies/"+id.String(), "", false)
	assert.Equal(t, http.StatusOK, rec.Code, "reads are public")

	rec = do(t, h, http.MethodGet, "/v1/companies/"+uuid.NewString(), "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/companies/not-a-uuid", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/companies?branch=SKUDAI&limit=10&offset=20", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ListFilter{Branch: models.BranchSkudai, Limit: 10, Offset: 20}, filter)

	rec = do(t, h, http.MethodGet, "/v1/companies?search=acme", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ListFilter{Search: "acme"}, filter)

	rec = do(t, h, http.MethodGet, "/v1/companies?limit=ten", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCompanyImmutableRegistration(t *testing.T) {
	id := uuid.New()
	var seen *models.CompanyUpdate
	records := &fakeRecords{
		updateCompany: func(_ context.Context, u *models.CompanyUpdate) (*models.Company, error) {
			seen = u
			if u.RegistrationNumber != nil {
				return nil, e.ErrImmutableField
			}
			return &models.Company{ID: u.ID, Name: *u.Name}, nil
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodPatch, "/v1/companies/"+id.String(), `{"name":"Renamed"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, id, seen.ID)
	assert.Nil(t, seen.Town, "absent fields stay nil")

	rec = do(t, h, http.MethodPatch, "/v1/companies/"+id.String(), `{"registration_number":"NEW"}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteCompany(t *testing.T) {
	records := &fakeRecords{
		deleteCompany: func(_ context.Context, _ uuid.UUID) error { return nil },
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodDelete, "/v1/companies/"+uuid.NewString(), "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAddDirectorUsesPathCompany(t *testing.T) {
	companyID := uuid.New()
	records := &fakeRecords{
		addDirector: func(_ context.Context, d *models.Director) (*models.Director, error) {
			d.ID = uuid.New()
			return d, nil
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodPost, fmt.Sprintf("/v1/companies/%s/directors", companyID),
		fmt.Sprintf(`{"full_name":"Alice","company_id":%q}`, uuid.NewString()), true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.Director
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, companyID, got.CompanyID)
}

func TestTemplateSelection(t *testing.T) {
	id := uuid.New()
	records := &fakeRecords{
		templateSelect: func(_ context.Context, got uuid.UUID) (*controller.Selection, error) {
			return &controller.Selection{
				Company:    &models.Company{ID: got},
				Categories: []models.TemplateCategory{{Category: "Resolutions"}},
				Actions:    controller.SelectionActions,
			}, nil
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodGet, "/v1/companies/"+id.String()+"/templates", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Resolutions")
	assert.Contains(t, rec.Body.String(), "preview")
}

func TestGenerateDocument(t *testing.T) {
	companyID, templateID := uuid.New(), uuid.New()
	base := fmt.Sprintf("/v1/companies/%s/documents/%s", companyID, templateID)

	tests := []struct {
		name        string
		target      string
		result      *docgen.Result
		err         error
		wantStatus  int
		wantAction  docgen.Action
		wantSubject string
		wantHeader  string
		wantBody    string
	}{
		{
			name:   "download",
			target: base,
			result: &docgen.Result{State: docgen.StateDownloaded, Artifact: &docgen.Artifact{
				Filename: "example-board-resolution.docx", ContentType: docgen.ContentTypeDocx, Data: []byte("docx"),
			}},
			wantStatus: http.StatusOK,
			wantAction: docgen.ActionDownload,
			wantHeader: `attachment; filename=example-board-resolution.docx`,
			wantBody:   "docx",
		},
		{
			name:   "preview is inline",
			target: base + "?action=preview&subject=all",
			result: &docgen.Result{State: docgen.StatePreviewed, Artifact: &docgen.Artifact{
				Filename: "x.pdf", ContentType: docgen.ContentTypePDF, Data: []byte("pdf"), Inline: true,
			}},
			wantStatus:  http.StatusOK,
			wantAction:  docgen.ActionPreview,
			wantSubject: "all",
			wantHeader:  `inline; filename=x.pdf`,
			wantBody:    "pdf",
		},
		{
			name:   "pdf route",
			target: base + "/pdf",
			result: &docgen.Result{State: docgen.StateDownloaded, Artifact: &docgen.Artifact{
				Filename: "x.pdf", ContentType: docgen.ContentTypePDF, Data: []byte("pdf"),
			}},
			wantStatus: http.StatusOK,
			wantAction: docgen.ActionDownloadPDF,
			wantHeader: `attachment; filename=x.pdf`,
		},
		{
			name:       "email reports recipients",
			target:     base + "?action=email",
			result:     &docgen.Result{State: docgen.StateEmailSent, Recipients: []string{"a@example.com"}},
			wantStatus: http.StatusOK,
			wantAction: docgen.ActionEmail,
			wantBody:   `{"state":"email_sent","recipients":["a@example.com"]}`,
		},
		{
			name:       "unknown action",
			target:     base + "?action=fax",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no recipients",
			target:     base + "?action=email",
			err:        e.ErrEmptyRecipients,
			wantStatus: http.StatusUnprocessableEntity,
			wantAction: docgen.ActionEmail,
		},
		{
			name:       "retrieval failure",
			target:     base,
			err:        fmt.Errorf("%w: status 404", e.ErrRetrieval),
			wantStatus: http.StatusBadGateway,
			wantAction: docgen.ActionDownload,
		},
		{
			name:       "batch preview rejected",
			target:     base + "?action=preview&subject=all",
			err:        e.ErrUnsupportedAction,
			wantStatus: http.StatusBadRequest,
			wantAction: docgen.ActionPreview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{result: tt.result, err: tt.err}
			h := newTestHandler(t, &fakeRecords{}, gen)

			rec := do(t, h, http.MethodGet, tt.target, "", false)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "documents need a token")

			rec = do(t, h, http.MethodGet, tt.target, "", true)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantAction == "" {
				assert.Empty(t, gen.requests)
				return
			}
			require.Len(t, gen.requests, 1)
			req := gen.requests[0]
			assert.Equal(t, tt.wantAction, req.Action)
			assert.Equal(t, tt.wantSubject, req.Subject)
			assert.Equal(t, companyID, req.CompanyID)
			assert.Equal(t, templateID, req.TemplateID)
			if tt.wantHeader != "" {
				assert.Equal(t, tt.wantHeader, rec.Header().Get("Content-Disposition"))
			}
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
			}
		})
	}
}

func TestConversionOutputIsNotExposed(t *testing.T) {
	gen := &fakeGenerator{err: &e.ConversionError{Reason: "engine produced no output", Output: "stack trace from engine"}}
	h := newTestHandler(t, &fakeRecords{}, gen)

	rec := do(t, h, http.MethodGet, fmt.Sprintf("/v1/companies/%s/documents/%s/pdf", uuid.New(), uuid.New()), "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decodeError(t, rec)
	assert.Equal(t, e.ErrConversion.Error(), msg)
	assert.NotContains(t, rec.Body.String(), "stack trace")
}

func TestRetrievalFailureIsDescribed(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: GET https://templates.example.com/consent.docx: status 404 Not Found", e.ErrRetrieval)}
	h := newTestHandler(t, &fakeRecords{}, gen)

	rec := do(t, h, http.MethodGet, fmt.Sprintf("/v1/companies/%s/documents/%s", uuid.New(), uuid.New()), "", true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	msg := decodeError(t, rec)
	assert.Contains(t, msg, e.ErrRetrieval.Error())
	assert.Contains(t, msg, "status 404 Not Found")
	assert.Contains(t, msg, "consent.docx")
}

func TestExportCompanies(t *testing.T) {
	records := &fakeRecords{
		exportCompanies: func(_ context.Context, w io.Writer) error {
			_, err := io.WriteString(w, "registration_number,name\n123-A,ACME\n")
			return err
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodGet, "/v1/exports/companies", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/exports/companies", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=companies.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "registration_number,name\n123-A,ACME\n", rec.Body.String())
}

func TestImportCompanies(t *testing.T) {
	const body = "registration_number,name\n123-A,Acme\n"
	var got []string
	records := &fakeRecords{
		importCompanies: func(_ context.Context, r io.Reader) (*controller.ImportReport, error) {
			raw, err := io.ReadAll(r)
			require.NoError(t, err)
			got = append(got, string(raw))
			if strings.Contains(string(raw), "bad") {
				return nil, fmt.Errorf("line 2: %w: postcode must be 5 digits", e.ErrInvalidInput)
			}
			return &controller.ImportReport{Created: 1}, nil
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodPost, "/v1/imports/companies", body, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/imports/companies", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var report controller.ImportReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, controller.ImportReport{Created: 1}, report)

	// the same sheet as a form upload
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "companies.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/companies", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	token, err := auth.GenerateToken("staff@example.com", testSecret, auth.DefaultTTL)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{body, body}, got)

	rec = do(t, h, http.MethodPost, "/v1/imports/companies", "registration_number\nbad\n", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "line 2")
}

func TestDirectorImport(t *testing.T) {
	companyID := uuid.New()
	var gotID uuid.UUID
	records := &fakeRecords{
		importDirectors: func(_ context.Context, id uuid.UUID, _ io.Reader) (*controller.ImportReport, error) {
			gotID = id
			return &controller.ImportReport{Created: 2, Skipped: 1}, nil
		},
	}
	h := newTestHandler(t, records, &fakeGenerator{})

	rec := do(t, h, http.MethodGet, "/v1/imports/directors/template", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=director_import_template.csv", rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "full_name,identity_number,"))

	rec = do(t, h, http.MethodPost, "/v1/companies/"+companyID.String()+"/directors/import", "full_name\nAlice\n", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, companyID, gotID)
	assert.JSONEq(t, `{"created":2,"updated":0,"skipped":1}`, rec.Body.String())
}
