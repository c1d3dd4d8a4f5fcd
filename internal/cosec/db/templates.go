package db

import (
	"context"
	"errors"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repository) CreateDocumentTemplate(ctx context.Context, tpl *models.DocumentTemplate) error {
	return r.db.WithContext(ctx).Create(tpl).Error
}

func (r *Repository) GetDocumentTemplate(ctx context.Context, id uuid.UUID) (*models.DocumentTemplate, error) {
	var tpl models.DocumentTemplate
	if err := r.db.WithContext(ctx).First(&tpl, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tpl, nil
}

func (r *Repository) ListDocumentTemplates(ctx context.Context) ([]models.DocumentTemplate, error) {
	var templates []models.DocumentTemplate
	if err := r.db.WithContext(ctx).Order("category ASC, name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *Repository) CreateEmailTemplate(ctx context.Context, tpl *models.EmailTemplate) error {
	err := r.db.WithContext(ctx).Create(tpl).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return e.ErrInvalidInput
	}
	return err
}

func (r *Repository) GetEmailTemplateByName(ctx context.Context, name string) (*models.EmailTemplate, error) {
	var tpl models.EmailTemplate
	if err := r.db.WithContext(ctx).First(&tpl, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	return &tpl, nil
}
