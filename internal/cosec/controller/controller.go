// Package controller implements the record service: validation and writes of
// companies and their owned records, plus the domain events they produce.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/gartstein/cosec/internal/cosec/db"
	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(eventType events.EventType, key string, payload interface{})
}

// Repository defines the storage interface for the company records.
type Repository interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	ListCompanies(ctx context.Context, filter models.ListFilter) ([]models.Company, error)
	CompaniesForExport(ctx context.Context) ([]models.Company, error)
	UpdateCompany(ctx context.Context, update *models.CompanyUpdate) error
	DeleteCompany(ctx context.Context, id uuid.UUID) error
	CompanyExistsByRegistration(ctx context.Context, registration string) (bool, error)
	GetDirector(ctx context.Context, id uuid.UUID) (*models.Director, error)
	CreateShareholder(ctx context.Context, shareholder *models.Shareholder) error
	UpsertContactPerson(ctx context.Context, contact *models.ContactPerson) error
	UpsertCompliance(ctx context.Context, info *models.ComplianceInformation) error
	CreateDocumentTemplate(ctx context.Context, tpl *models.DocumentTemplate) error
	ListDocumentTemplates(ctx context.Context) ([]models.DocumentTemplate, error)
	CreateEmailTemplate(ctx context.Context, tpl *models.EmailTemplate) error
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
	Close() error
}

// RecordService manages companies and the records they own.
type RecordService struct {
	repo     Repository
	producer EventProducer
	logger   *zap.Logger
}

// NewRecordService constructs a RecordService with a repository, an event
// producer, and a logger.
func NewRecordService(repo Repository, producer EventProducer, logger *zap.Logger) *RecordService {
	return &RecordService{
		repo:     repo,
		producer: producer,
		logger:   logger.Named("record_service"),
	}
}

func (s *RecordService) emit(eventType events.EventType, companyID uuid.UUID, payload interface{}) {
	if s.producer != nil {
		s.producer.Produce(eventType, companyID.String(), payload)
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", e.ErrInvalidInput, fmt.Sprintf(format, args...))
}

var (
	nameLength         = strconv.Itoa(models.MaxNameLength)
	registrationLength = strconv.Itoa(models.MaxRegistrationLength)
)

func validPostcode(p string) bool {
	p = strings.TrimSpace(p)
	if p == "" {
		return true
	}
	return len(p) == models.PostcodeLength && govalidator.IsNumeric(p)
}

func validEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	return addr == "" || govalidator.IsEmail(addr)
}

func validName(name string) bool {
	return govalidator.StringLength(strings.TrimSpace(name), "1", nameLength)
}

func validateCompany(c *models.Company) error {
	if !validName(c.Name) {
		return invalid("name is required and at most %d characters", models.MaxNameLength)
	}
	if !govalidator.StringLength(strings.TrimSpace(c.RegistrationNumber), "1", registrationLength) {
		return invalid("registration number is required and at most %d characters", models.MaxRegistrationLength)
	}
	if c.Branch == "" {
		c.Branch = models.DefaultBranch
	}
	if !c.Branch.Valid() {
		return invalid("unknown branch %q", c.Branch)
	}
	if !validPostcode(c.Postcode) {
		return invalid("postcode must be %d digits", models.PostcodeLength)
	}
	if strings.TrimSpace(c.NatureOfBusiness1) == "" {
		return invalid("nature of business is required")
	}
	return nil
}

// CreateCompany validates and stores a new company. Owned records sent along
// are ignored; they are added through their own operations.
func (s *RecordService) CreateCompany(ctx context.Context, company *models.Company) (*models.Company, error) {
	if err := validateCompany(company); err != nil {
		return nil, err
	}
	company.Normalize()

	exists, err := s.repo.CompanyExistsByRegistration(ctx, company.RegistrationNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check registration number: %w", err)
	}
	if exists {
		return nil, e.ErrDuplicateRegistration
	}

	company.ID = uuid.New()
	company.Directors, company.Shareholders = nil, nil
	company.ContactPerson, company.Compliance = nil, nil
	if err := s.repo.CreateCompany(ctx, company); err != nil {
		if errors.Is(err, e.ErrDuplicateRegistration) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	s.emit(events.CompanyCreated, company.ID, company)
	return company, nil
}

// GetCompany retrieves a Company by ID with all owned records.
func (s *RecordService) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	company, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}

func (s *RecordService) ListCompanies(ctx context.Context, filter models.ListFilter) ([]models.Company, error) {
	if filter.Branch != "" && !filter.Branch.Valid() {
		return nil, invalid("unknown branch %q", filter.Branch)
	}
	if filter.Offset < 0 {
		return nil, invalid("offset must not be negative")
	}
	companies, err := s.repo.ListCompanies(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// UpdateCompany applies a partial update. The registration number may be
// repeated unchanged but never altered.
func (s *RecordService) UpdateCompany(ctx context.Context, update *models.CompanyUpdate) (*models.Company, error) {
	if update.ID == uuid.Nil {
		return nil, invalid("invalid company ID")
	}
	current, err := s.GetCompany(ctx, update.ID)
	if err != nil {
		return nil, err
	}
	if update.RegistrationNumber != nil &&
		strings.ToUpper(strings.TrimSpace(*update.RegistrationNumber)) != current.RegistrationNumber {
		return nil, fmt.Errorf("%w: registration number", e.ErrImmutableField)
	}
	if update.Name != nil {
		if !validName(*update.Name) {
			return nil, invalid("name is required and at most %d characters", models.MaxNameLength)
		}
	}
	if update.Branch != nil && !update.Branch.Valid() {
		return nil, invalid("unknown branch %q", *update.Branch)
	}
	if update.Postcode != nil && !validPostcode(*update.Postcode) {
		return nil, invalid("postcode must be %d digits", models.PostcodeLength)
	}
	if update.NatureOfBusiness1 != nil && strings.TrimSpace(*update.NatureOfBusiness1) == "" {
		return nil, invalid("nature of business is required")
	}

	if err := s.repo.UpdateCompany(ctx, update); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update company: %w", err)
	}

	updated, err := s.repo.GetCompany(ctx, update.ID)
	if err != nil {
		s.logger.Error("Failed to get company for event",
			zap.Error(err),
			zap.String("company_id", update.ID.String()),
		)
		return nil, err
	}
	s.emit(events.CompanyUpdated, updated.ID, updated)
	return updated, nil
}

// DeleteCompany removes a company together with everything it owns.
func (s *RecordService) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	company, err := s.GetCompany(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCompany(ctx, id); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete company: %w", err)
	}
	s.emit(events.CompanyDeleted, company.ID, company)
	return nil
}
