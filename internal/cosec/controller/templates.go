package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
)

// Uncategorised labels templates registered without a category.
const Uncategorised = "Uncategorised"

// Selection is what a caller needs to pick a document to generate.
type Selection struct {
	Company    *models.Company           `json:"company"`
	Categories []models.TemplateCategory `json:"categories"`
	Directors  []models.Director         `json:"directors"`
	Actions    []string                  `json:"actions"`
}

// SelectionActions are the values the generate endpoint accepts for action.
var SelectionActions = []string{"generate", "preview", "email"}

// checkTemplateLocation accepts an http(s) URL or a path relative to the
// templates directory.
func checkTemplateLocation(loc string) error {
	if strings.Contains(loc, "://") {
		lower := strings.ToLower(loc)
		if (!strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://")) || !govalidator.IsURL(loc) {
			return invalid("template location %q is not an http(s) URL", loc)
		}
		return nil
	}
	if filepath.IsAbs(loc) || strings.HasPrefix(loc, "/") || strings.HasPrefix(loc, `\`) {
		return invalid("template location %q must be relative to the templates directory", loc)
	}
	if strings.Contains(loc, "..") {
		return invalid("template location %q leaves the templates directory", loc)
	}
	return nil
}

func (s *RecordService) CreateDocumentTemplate(ctx context.Context, tpl *models.DocumentTemplate) (*models.DocumentTemplate, error) {
	tpl.Name = strings.TrimSpace(tpl.Name)
	tpl.Category = strings.TrimSpace(tpl.Category)
	tpl.Location = strings.TrimSpace(tpl.Location)
	if tpl.Name == "" {
		return nil, invalid("template name is required")
	}
	if tpl.Location == "" {
		return nil, invalid("template location is required")
	}
	if err := checkTemplateLocation(tpl.Location); err != nil {
		return nil, err
	}

	tpl.ID = uuid.New()
	if err := s.repo.CreateDocumentTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to create document template: %w", err)
	}
	return tpl, nil
}

// ListDocumentTemplates returns every template grouped by category, in
// category and name order.
func (s *RecordService) ListDocumentTemplates(ctx context.Context) ([]models.TemplateCategory, error) {
	templates, err := s.repo.ListDocumentTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list document templates: %w", err)
	}
	return groupByCategory(templates), nil
}

func groupByCategory(templates []models.DocumentTemplate) []models.TemplateCategory {
	var (
		groups []models.TemplateCategory
		index  = map[string]int{}
	)
	for _, t := range templates {
		cat := t.Category
		if cat == "" {
			cat = Uncategorised
		}
		i, ok := index[cat]
		if !ok {
			i = len(groups)
			index[cat] = i
			groups = append(groups, models.TemplateCategory{Category: cat})
		}
		groups[i].Templates = append(groups[i].Templates, t)
	}
	return groups
}

func (s *RecordService) CreateEmailTemplate(ctx context.Context, tpl *models.EmailTemplate) (*models.EmailTemplate, error) {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" || strings.TrimSpace(tpl.Subject) == "" {
		return nil, invalid("email template name and subject are required")
	}
	if err := mailer.Validate(tpl.Subject, tpl.Body); err != nil {
		return nil, invalid("%v", err)
	}
	tpl.ID = uuid.New()
	if err := s.repo.CreateEmailTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to create email template: %w", err)
	}
	return tpl, nil
}

// TemplateSelection lists the templates, directors and actions available for
// a company.
func (s *RecordService) TemplateSelection(ctx context.Context, companyID uuid.UUID) (*Selection, error) {
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	categories, err := s.ListDocumentTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return &Selection{
		Company:    company,
		Categories: categories,
		Directors:  company.Directors,
		Actions:    SelectionActions,
	}, nil
}
