package controller

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gartstein/cosec/internal/cosec/db"
	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SheetDateLayout is the date format of every date cell in a sheet.
const SheetDateLayout = "2006-01-02"

// ImportReport counts what an import did with its rows.
type ImportReport struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// column binds one sheet column to a field of T.
type column[T any] struct {
	name string
	get  func(*T) string
	set  func(*T, string) error
}

func textColumn[T any](name string, field func(*T) *string) column[T] {
	return column[T]{
		name: name,
		get:  func(v *T) string { return *field(v) },
		set: func(v *T, s string) error {
			*field(v) = strings.TrimSpace(s)
			return nil
		},
	}
}

// dateColumn leaves the stored date alone when the cell is empty.
func dateColumn[T any](name string, field func(*T) **time.Time) column[T] {
	return column[T]{
		name: name,
		get: func(v *T) string {
			if d := *field(v); d != nil {
				return d.Format(SheetDateLayout)
			}
			return ""
		},
		set: func(v *T, s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil
			}
			d, err := time.Parse(SheetDateLayout, s)
			if err != nil {
				return fmt.Errorf("%s %q is not a YYYY-MM-DD date", name, s)
			}
			*field(v) = &d
			return nil
		},
	}
}

func flagColumn[T any](name string, field func(*T) *bool) column[T] {
	return column[T]{
		name: name,
		get:  func(v *T) string { return strconv.FormatBool(*field(v)) },
		set: func(v *T, s string) error {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "", "0", "n", "no", "false":
				*field(v) = false
			case "1", "y", "yes", "true":
				*field(v) = true
			default:
				return fmt.Errorf("%s %q is not yes or no", name, s)
			}
			return nil
		},
	}
}

var companyColumns = []column[models.Company]{
	textColumn("registration_number", func(c *models.Company) *string { return &c.RegistrationNumber }),
	textColumn("name", func(c *models.Company) *string { return &c.Name }),
	dateColumn("incorporation_date", func(c *models.Company) **time.Time { return &c.IncorporationDate }),
	{
		name: "branch",
		get:  func(c *models.Company) string { return string(c.Branch) },
		set: func(c *models.Company, s string) error {
			c.Branch = models.Branch(strings.ToUpper(strings.TrimSpace(s)))
			return nil
		},
	},
	textColumn("address_line1", func(c *models.Company) *string { return &c.AddressLine1 }),
	textColumn("address_line2", func(c *models.Company) *string { return &c.AddressLine2 }),
	textColumn("address_line3", func(c *models.Company) *string { return &c.AddressLine3 }),
	textColumn("postcode", func(c *models.Company) *string { return &c.Postcode }),
	textColumn("town", func(c *models.Company) *string { return &c.Town }),
	textColumn("state", func(c *models.Company) *string { return &c.State }),
	textColumn("nature_of_business_1", func(c *models.Company) *string { return &c.NatureOfBusiness1 }),
	textColumn("nature_of_business_2", func(c *models.Company) *string { return &c.NatureOfBusiness2 }),
	textColumn("nature_of_business_3", func(c *models.Company) *string { return &c.NatureOfBusiness3 }),
}

var complianceColumns = []column[models.ComplianceInformation]{
	textColumn("financial_year_end", func(c *models.ComplianceInformation) *string { return &c.FinancialYearEnd }),
	dateColumn("latest_annual_return_filed", func(c *models.ComplianceInformation) **time.Time { return &c.LatestAnnualReturnFiled }),
	dateColumn("latest_financial_statement_filed", func(c *models.ComplianceInformation) **time.Time {
		return &c.LatestFinancialStatementFiled
	}),
	textColumn("auditor_name", func(c *models.ComplianceInformation) *string { return &c.AuditorName }),
	textColumn("tax_agent_name", func(c *models.ComplianceInformation) *string { return &c.TaxAgentName }),
}

var directorColumns = []column[models.Director]{
	textColumn("full_name", func(d *models.Director) *string { return &d.FullName }),
	textColumn("identity_number", func(d *models.Director) *string { return &d.IdentityNumber }),
	textColumn("address_line1", func(d *models.Director) *string { return &d.AddressLine1 }),
	textColumn("address_line2", func(d *models.Director) *string { return &d.AddressLine2 }),
	textColumn("address_line3", func(d *models.Director) *string { return &d.AddressLine3 }),
	textColumn("postcode", func(d *models.Director) *string { return &d.Postcode }),
	textColumn("town", func(d *models.Director) *string { return &d.Town }),
	textColumn("state", func(d *models.Director) *string { return &d.State }),
	textColumn("phone_number", func(d *models.Director) *string { return &d.PhoneNumber }),
	textColumn("email", func(d *models.Director) *string { return &d.Email }),
	{
		name: "appointment_date",
		get: func(d *models.Director) string {
			if d.AppointmentDate.IsZero() {
				return ""
			}
			return d.AppointmentDate.Format(SheetDateLayout)
		},
		set: func(d *models.Director, s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil
			}
			t, err := time.Parse(SheetDateLayout, s)
			if err != nil {
				return fmt.Errorf("appointment_date %q is not a YYYY-MM-DD date", s)
			}
			d.AppointmentDate = t
			return nil
		},
	},
	dateColumn("resignation_date", func(d *models.Director) **time.Time { return &d.ResignationDate }),
	flagColumn("is_shareholder", func(d *models.Director) *bool { return &d.IsShareholder }),
	flagColumn("is_contact_person", func(d *models.Director) *bool { return &d.IsContactPerson }),
}

func columnNames[T any](cols []column[T]) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.name)
	}
	return names
}

// applyRow sets every column present in row on v.
func applyRow[T any](cols []column[T], v *T, row map[string]string) error {
	for _, c := range cols {
		cell, ok := row[c.name]
		if !ok {
			continue
		}
		if err := c.set(v, cell); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

// differs reports whether a and b disagree on any column present in row.
func differs[T any](cols []column[T], a, b *T, row map[string]string) bool {
	for _, c := range cols {
		if _, ok := row[c.name]; ok && c.get(a) != c.get(b) {
			return true
		}
	}
	return false
}

// sheetReader reads CSV rows keyed by the names in the header line.
type sheetReader struct {
	r     *csv.Reader
	index map[string]int
}

func newSheetReader(r io.Reader, required ...string) (*sheetReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalid("sheet is empty")
	}
	if err != nil {
		return nil, invalid("malformed sheet: %v", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "" {
			continue
		}
		if _, dup := index[name]; dup {
			return nil, invalid("column %q appears twice", name)
		}
		index[name] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, invalid("sheet has no %q column", name)
		}
	}
	return &sheetReader{r: cr, index: index}, nil
}

// next returns the next row and its line number, or io.EOF.
func (s *sheetReader) next() (map[string]string, int, error) {
	record, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, invalid("malformed sheet: %v", err)
	}
	line, _ := s.r.FieldPos(0)
	row := make(map[string]string, len(s.index))
	for name, i := range s.index {
		if i < len(record) {
			row[name] = record[i]
		}
	}
	return row, line, nil
}

// ExportCompanies writes every company with its filing particulars as CSV.
// The output can be fed back to ImportCompanies.
func (s *RecordService) ExportCompanies(ctx context.Context, w io.Writer) error {
	companies, err := s.repo.CompaniesForExport(ctx)
	if err != nil {
		return fmt.Errorf("failed to load companies: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append(columnNames(companyColumns), columnNames(complianceColumns)...)); err != nil {
		return err
	}
	for i := range companies {
		c := &companies[i]
		info := c.Compliance
		if info == nil {
			info = &models.ComplianceInformation{}
		}
		record := make([]string, 0, len(companyColumns)+len(complianceColumns))
		for _, col := range companyColumns {
			record = append(record, col.get(c))
		}
		for _, col := range complianceColumns {
			record = append(record, col.get(info))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type importOutcome int

const (
	outcomeSkipped importOutcome = iota
	outcomeCreated
	outcomeUpdated
)

// ImportCompanies creates or updates companies from a CSV sheet keyed by
// registration number. Rows that change nothing are skipped. Any invalid row
// rejects the whole sheet.
func (s *RecordService) ImportCompanies(ctx context.Context, r io.Reader) (*ImportReport, error) {
	sheet, err := newSheetReader(r, "registration_number")
	if err != nil {
		return nil, err
	}

	report := &ImportReport{}
	var created, updated []models.Company
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		for {
			row, line, err := sheet.next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			outcome, company, err := importCompany(ctx, tx, row)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			switch outcome {
			case outcomeCreated:
				report.Created++
				created = append(created, *company)
			case outcomeUpdated:
				report.Updated++
				updated = append(updated, *company)
			default:
				report.Skipped++
			}
		}
	})
	if err != nil {
		if errors.Is(err, e.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to import companies: %w", err)
	}

	for i := range created {
		s.emit(events.CompanyCreated, created[i].ID, &created[i])
	}
	for i := range updated {
		s.emit(events.CompanyUpdated, updated[i].ID, &updated[i])
	}
	s.logger.Info("Companies imported",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func importCompany(ctx context.Context, tx *db.Repository, row map[string]string) (importOutcome, *models.Company, error) {
	reg := strings.ToUpper(strings.TrimSpace(row["registration_number"]))
	if reg == "" {
		return 0, nil, invalid("registration number is required")
	}
	current, err := tx.GetCompanyByRegistration(ctx, reg)
	isNew := errors.Is(err, e.ErrNotFound)
	if err != nil && !isNew {
		return 0, nil, err
	}

	next := models.Company{RegistrationNumber: reg}
	baseInfo := models.ComplianceInformation{BeneficialOwnerDeclaration: models.DeclarationPending}
	if !isNew {
		next = *current
		next.Compliance = nil
		if current.Compliance != nil {
			baseInfo = *current.Compliance
		}
	}
	if err := applyRow(companyColumns, &next, row); err != nil {
		return 0, nil, err
	}
	if err := validateCompany(&next); err != nil {
		return 0, nil, err
	}
	next.Normalize()

	info := baseInfo
	if err := applyRow(complianceColumns, &info, row); err != nil {
		return 0, nil, err
	}
	infoChanged := differs(complianceColumns, &info, &baseInfo, row)

	if isNew {
		next.ID = uuid.New()
		if err := tx.CreateCompany(ctx, &next); err != nil {
			return 0, nil, fmt.Errorf("failed to create company: %w", err)
		}
	} else {
		if !differs(companyColumns, &next, current, row) && !infoChanged {
			return outcomeSkipped, nil, nil
		}
		if err := tx.UpdateCompany(ctx, companyUpdate(&next)); err != nil {
			return 0, nil, fmt.Errorf("failed to update company: %w", err)
		}
	}
	if infoChanged {
		info.CompanyID = next.ID
		if err := tx.UpsertCompliance(ctx, &info); err != nil {
			return 0, nil, fmt.Errorf("failed to save compliance information: %w", err)
		}
		next.Compliance = &info
	}
	if isNew {
		return outcomeCreated, &next, nil
	}
	return outcomeUpdated, &next, nil
}

// companyUpdate sets every updatable field of c.
func companyUpdate(c *models.Company) *models.CompanyUpdate {
	return &models.CompanyUpdate{
		ID:                c.ID,
		Name:              &c.Name,
		IncorporationDate: c.IncorporationDate,
		Branch:            &c.Branch,
		AddressLine1:      &c.AddressLine1,
		AddressLine2:      &c.AddressLine2,
		AddressLine3:      &c.AddressLine3,
		Postcode:          &c.Postcode,
		Town:              &c.Town,
		State:             &c.State,
		NatureOfBusiness1: &c.NatureOfBusiness1,
		NatureOfBusiness2: &c.NatureOfBusiness2,
		NatureOfBusiness3: &c.NatureOfBusiness3,
	}
}

// DirectorImportTemplate is the empty sheet ImportDirectors accepts.
func DirectorImportTemplate() []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(columnNames(directorColumns))
	cw.Flush()
	return buf.Bytes()
}

// ImportDirectors adds the directors listed in a CSV sheet to a company.
// Directors already on record under the same name and identity number are
// skipped. Any invalid row rejects the whole sheet.
func (s *RecordService) ImportDirectors(ctx context.Context, companyID uuid.UUID, r io.Reader) (*ImportReport, error) {
	sheet, err := newSheetReader(r, "full_name")
	if err != nil {
		return nil, err
	}

	report := &ImportReport{}
	var (
		added  []*models.Director
		copies []*models.Shareholder
	)
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if _, err := tx.GetCompany(ctx, companyID); err != nil {
			return err
		}
		for {
			row, line, err := sheet.next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			d := &models.Director{CompanyID: companyID}
			if err := applyRow(directorColumns, d, row); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if err := validateDirector(d); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			exists, err := tx.DirectorExists(ctx, companyID, d.FullName, d.IdentityNumber)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if exists {
				report.Skipped++
				continue
			}
			copied, err := createDirector(ctx, tx, d)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			report.Created++
			added = append(added, d)
			if copied != nil {
				copies = append(copies, copied)
			}
		}
	})
	if err != nil {
		if errors.Is(err, e.ErrInvalidInput) || errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to import directors: %w", err)
	}

	for _, d := range added {
		s.emit(events.DirectorAdded, companyID, d)
	}
	for _, sh := range copies {
		s.emit(events.ShareholderAdded, companyID, sh)
	}
	s.logger.Info("Directors imported",
		zap.String("company_id", companyID.String()),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}
