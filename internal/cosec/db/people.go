package db

import (
	"context"
	"errors"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) CreateDirector(ctx context.Context, director *models.Director) error {
	return r.db.WithContext(ctx).Create(director).Error
}

func (r *Repository) GetDirector(ctx context.Context, id uuid.UUID) (*models.Director, error) {
	var director models.Director
	if err := r.db.WithContext(ctx).First(&director, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &director, nil
}

func (r *Repository) UpdateDirector(ctx context.Context, update *models.DirectorUpdate) error {
	cols := update.Columns()
	if len(cols) == 0 {
		_, err := r.GetDirector(ctx, update.ID)
		return err
	}
	result := r.db.WithContext(ctx).Model(&models.Director{}).
		Where("id = ?", update.ID).
		Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// DirectorExists reports whether the company already has a director with the
// given full name and identity number.
func (r *Repository) DirectorExists(ctx context.Context, companyID uuid.UUID, fullName, identity string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Director{}).
		Where("company_id = ? AND full_name = ? AND identity_number = ?", companyID, fullName, identity).
		Count(&count).Error
	return count > 0, err
}

// ShareholderExists reports whether the company already has a shareholder
// with the given full name and identity number.
func (r *Repository) ShareholderExists(ctx context.Context, companyID uuid.UUID, fullName, identity string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Shareholder{}).
		Where("company_id = ? AND full_name = ? AND identity_number = ?", companyID, fullName, identity).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CreateShareholder(ctx context.Context, shareholder *models.Shareholder) error {
	return r.db.WithContext(ctx).Create(shareholder).Error
}

// CreateShareholderCopy inserts the shareholder copy of a director. It
// reports false, without error, when a copy of that director already exists.
func (r *Repository) CreateShareholderCopy(ctx context.Context, shareholder *models.Shareholder) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(shareholder)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) CountShareholders(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Shareholder{}).Where("company_id = ?", companyID).Count(&count).Error
	return count, err
}

// UpsertContactPerson replaces the company's contact person, keeping the
// one-per-company rule.
func (r *Repository) UpsertContactPerson(ctx context.Context, contact *models.ContactPerson) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ContactPerson
		err := tx.Where("company_id = ?", contact.CompanyID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if contact.ID == uuid.Nil {
				contact.ID = uuid.New()
			}
			return tx.Create(contact).Error
		case err != nil:
			return err
		}
		contact.ID = existing.ID
		contact.CreatedAt = existing.CreatedAt
		return tx.Save(contact).Error
	})
}

// UpsertCompliance replaces the company's compliance information.
func (r *Repository) UpsertCompliance(ctx context.Context, info *models.ComplianceInformation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ComplianceInformation
		err := tx.Where("company_id = ?", info.CompanyID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if info.ID == uuid.Nil {
				info.ID = uuid.New()
			}
			return tx.Create(info).Error
		case err != nil:
			return err
		}
		info.ID = existing.ID
		info.CreatedAt = existing.CreatedAt
		return tx.Save(info).Error
	})
}
