package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gartstein/cosec/internal/cosec/db"
	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func validateDirector(d *models.Director) error {
	d.FullName = strings.TrimSpace(d.FullName)
	d.IdentityNumber = strings.TrimSpace(d.IdentityNumber)
	d.Email = strings.TrimSpace(d.Email)
	if d.FullName == "" {
		return invalid("director full name is required")
	}
	if !validEmail(d.Email) {
		return invalid("invalid director email %q", d.Email)
	}
	if !validPostcode(d.Postcode) {
		return invalid("postcode must be %d digits", models.PostcodeLength)
	}
	if d.ResignationDate != nil && !d.AppointmentDate.IsZero() && d.ResignationDate.Before(d.AppointmentDate) {
		return invalid("resignation date precedes appointment date")
	}
	return nil
}

// ensureShareholder creates the one-time shareholder copy of d unless the
// company already has a shareholder with the same name and identity number.
// The unique source director column settles concurrent flag flips.
func ensureShareholder(ctx context.Context, tx *db.Repository, d *models.Director) (*models.Shareholder, error) {
	exists, err := tx.ShareholderExists(ctx, d.CompanyID, d.FullName, d.IdentityNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check shareholder: %w", err)
	}
	if exists {
		return nil, nil
	}
	sh := models.ShareholderFromDirector(d)
	created, err := tx.CreateShareholderCopy(ctx, sh)
	if err != nil {
		return nil, fmt.Errorf("failed to create shareholder copy: %w", err)
	}
	if !created {
		return nil, nil
	}
	return sh, nil
}

// createDirector validates and stores d inside tx. A director flagged as
// shareholder also gets a shareholder record, once.
func createDirector(ctx context.Context, tx *db.Repository, d *models.Director) (*models.Shareholder, error) {
	if err := validateDirector(d); err != nil {
		return nil, err
	}
	if d.AppointmentDate.IsZero() {
		d.AppointmentDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	d.ID = uuid.New()
	if err := tx.CreateDirector(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create director: %w", err)
	}
	if !d.IsShareholder {
		return nil, nil
	}
	return ensureShareholder(ctx, tx, d)
}

// AddDirector stores a director of an existing company.
func (s *RecordService) AddDirector(ctx context.Context, director *models.Director) (*models.Director, error) {
	if err := validateDirector(director); err != nil {
		return nil, err
	}

	var copied *models.Shareholder
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if _, err := tx.GetCompany(ctx, director.CompanyID); err != nil {
			return err
		}
		var err error
		copied, err = createDirector(ctx, tx, director)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(events.DirectorAdded, director.CompanyID, director)
	if copied != nil {
		s.logger.Info("Director copied to shareholders",
			zap.String("company_id", director.CompanyID.String()),
			zap.String("director_id", director.ID.String()),
		)
		s.emit(events.ShareholderAdded, copied.CompanyID, copied)
	}
	return director, nil
}

// UpdateDirector applies a partial update. If the director is a shareholder
// afterwards and no matching shareholder exists yet, one is copied.
func (s *RecordService) UpdateDirector(ctx context.Context, update *models.DirectorUpdate) (*models.Director, error) {
	if update.ID == uuid.Nil {
		return nil, invalid("invalid director ID")
	}
	if update.FullName != nil && !validName(*update.FullName) {
		return nil, invalid("director full name is required")
	}
	if update.Email != nil && !validEmail(*update.Email) {
		return nil, invalid("invalid director email %q", *update.Email)
	}

	var (
		updated *models.Director
		copied  *models.Shareholder
	)
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if err := tx.UpdateDirector(ctx, update); err != nil {
			return err
		}
		var err error
		if updated, err = tx.GetDirector(ctx, update.ID); err != nil {
			return err
		}
		if !updated.IsShareholder {
			return nil
		}
		copied, err = ensureShareholder(ctx, tx, updated)
		return err
	})
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update director: %w", err)
	}
	if copied != nil {
		s.emit(events.ShareholderAdded, copied.CompanyID, copied)
	}
	return updated, nil
}

// AddShareholder stores a shareholder of an existing company.
func (s *RecordService) AddShareholder(ctx context.Context, sh *models.Shareholder) (*models.Shareholder, error) {
	sh.FullName = strings.TrimSpace(sh.FullName)
	if sh.FullName == "" {
		return nil, invalid("shareholder full name is required")
	}
	if sh.Shareholding < 0 {
		return nil, invalid("shareholding must not be negative")
	}
	if sh.Category == "" {
		sh.Category = models.ShareOrdinary
	}
	if !sh.Category.Valid() {
		return nil, invalid("unknown share category %q", sh.Category)
	}
	if !validEmail(sh.Email) {
		return nil, invalid("invalid shareholder email %q", sh.Email)
	}
	if _, err := s.GetCompany(ctx, sh.CompanyID); err != nil {
		return nil, err
	}

	sh.ID = uuid.New()
	if err := s.repo.CreateShareholder(ctx, sh); err != nil {
		return nil, fmt.Errorf("failed to create shareholder: %w", err)
	}
	s.emit(events.ShareholderAdded, sh.CompanyID, sh)
	return sh, nil
}

// SetContactPerson creates or replaces the company's contact person.
func (s *RecordService) SetContactPerson(ctx context.Context, cp *models.ContactPerson) (*models.ContactPerson, error) {
	cp.Name = strings.TrimSpace(cp.Name)
	cp.Email = strings.TrimSpace(cp.Email)
	if cp.Name == "" {
		return nil, invalid("contact person name is required")
	}
	if !validEmail(cp.Email) {
		return nil, invalid("invalid contact email %q", cp.Email)
	}
	if _, err := s.GetCompany(ctx, cp.CompanyID); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertContactPerson(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save contact person: %w", err)
	}
	return cp, nil
}

// SetComplianceInformation creates or replaces the company's compliance
// particulars. The declaration defaults to pending.
func (s *RecordService) SetComplianceInformation(ctx context.Context, info *models.ComplianceInformation) (*models.ComplianceInformation, error) {
	switch info.BeneficialOwnerDeclaration {
	case "":
		info.BeneficialOwnerDeclaration = models.DeclarationPending
	case models.DeclarationPending, models.DeclarationDeclared:
	default:
		return nil, invalid("unknown declaration status %q", info.BeneficialOwnerDeclaration)
	}
	if !validPostcode(info.AuditorAddress.Postcode) || !validPostcode(info.TaxAgentAddress.Postcode) {
		return nil, invalid("postcode must be %d digits", models.PostcodeLength)
	}
	if _, err := s.GetCompany(ctx, info.CompanyID); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertCompliance(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to save compliance information: %w", err)
	}
	return info, nil
}
