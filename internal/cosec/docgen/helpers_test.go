package docgen

import (
	"context"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
)

// mockStore serves fixed records.
type mockStore struct {
	companies      map[uuid.UUID]*models.Company
	templates      map[uuid.UUID]*models.DocumentTemplate
	emailTemplates map[string]*models.EmailTemplate
}

func newMockStore() *mockStore {
	return &mockStore{
		companies:      map[uuid.UUID]*models.Company{},
		templates:      map[uuid.UUID]*models.DocumentTemplate{},
		emailTemplates: map[string]*models.EmailTemplate{},
	}
}

func (m *mockStore) GetCompany(_ context.Context, id uuid.UUID) (*models.Company, error) {
	if c, ok := m.companies[id]; ok {
		return c, nil
	}
	return nil, e.ErrNotFound
}

func (m *mockStore) GetDocumentTemplate(_ context.Context, id uuid.UUID) (*models.DocumentTemplate, error) {
	if t, ok := m.templates[id]; ok {
		return t, nil
	}
	return nil, e.ErrNotFound
}

func (m *mockStore) GetEmailTemplateByName(_ context.Context, name string) (*models.EmailTemplate, error) {
	if t, ok := m.emailTemplates[name]; ok {
		return t, nil
	}
	return nil, e.ErrNotFound
}

func (m *mockStore) addTemplate(location string, perDirector bool) *models.DocumentTemplate {
	tpl := &models.DocumentTemplate{
		ID:          uuid.New(),
		Name:        "Board Resolution",
		Category:    "Resolutions",
		Location:    location,
		PerDirector: perDirector,
	}
	m.templates[tpl.ID] = tpl
	return tpl
}
