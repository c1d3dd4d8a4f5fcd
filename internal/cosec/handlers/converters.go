package handlers

import (
	"errors"
	"net/http"
	"time"

	e "github.com/gartstein/cosec/internal/cosec/errors"
	"github.com/gartstein/cosec/internal/cosec/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// companyPatch is the body of a company update. Absent fields stay unchanged.
type companyPatch struct {
	Name               *string        `json:"name"`
	RegistrationNumber *string        `json:"registration_number"`
	IncorporationDate  *time.Time     `json:"incorporation_date"`
	Branch             *models.Branch `json:"branch"`
	AddressLine1       *string        `json:"address_line1"`
	AddressLine2       *string        `json:"address_line2"`
	AddressLine3       *string        `json:"address_line3"`
	Postcode           *string        `json:"postcode"`
	Town               *string        `json:"town"`
	State              *string        `json:"state"`
	NatureOfBusiness1  *string        `json:"nature_of_business1"`
	NatureOfBusiness2  *string        `json:"nature_of_business2"`
	NatureOfBusiness3  *string        `json:"nature_of_business3"`
}

func (p *companyPatch) toUpdate(id uuid.UUID) *models.CompanyUpdate {
	return &models.CompanyUpdate{
		ID:                 id,
		Name:               p.Name,
		RegistrationNumber: p.RegistrationNumber,
		IncorporationDate:  p.IncorporationDate,
		Branch:             p.Branch,
		AddressLine1:       p.AddressLine1,
		AddressLine2:       p.AddressLine2,
		AddressLine3:       p.AddressLine3,
		Postcode:           p.Postcode,
		Town:               p.Town,
		State:              p.State,
		NatureOfBusiness1:  p.NatureOfBusiness1,
		NatureOfBusiness2:  p.NatureOfBusiness2,
		NatureOfBusiness3:  p.NatureOfBusiness3,
	}
}

type directorPatch struct {
	FullName        *string    `json:"full_name"`
	IdentityNumber  *string    `json:"identity_number"`
	PhoneNumber     *string    `json:"phone_number"`
	Email           *string    `json:"email"`
	ResignationDate *time.Time `json:"resignation_date"`
	IsShareholder   *bool      `json:"is_shareholder"`
	IsContactPerson *bool      `json:"is_contact_person"`
}

func (p *directorPatch) toUpdate(id uuid.UUID) *models.DirectorUpdate {
	return &models.DirectorUpdate{
		ID:              id,
		FullName:        p.FullName,
		IdentityNumber:  p.IdentityNumber,
		PhoneNumber:     p.PhoneNumber,
		Email:           p.Email,
		ResignationDate: p.ResignationDate,
		IsShareholder:   p.IsShareholder,
		IsContactPerson: p.IsContactPerson,
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// mapServiceError maps domain or repository errors to an HTTP status and a
// client-safe message. Conversion engine output never leaves the server.
func (a *API) mapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, e.ErrDuplicateRegistration), errors.Is(err, e.ErrImmutableField):
		return http.StatusConflict, err.Error()
	case errors.Is(err, e.ErrInvalidInput), errors.Is(err, e.ErrUnsupportedAction):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, e.ErrEmptyRecipients):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, e.ErrRetrieval):
		a.logger.Warn("Template retrieval failed", zap.Error(err))
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, e.ErrConversion):
		fields := []zap.Field{zap.Error(err)}
		if ce, ok := e.AsConversionError(err); ok {
			fields = append(fields, zap.String("engine_output", ce.Output))
		}
		a.logger.Error("Document conversion failed", fields...)
		return http.StatusInternalServerError, e.ErrConversion.Error()
	default:
		a.logger.Error("Internal server error", zap.Error(err))
		return http.StatusInternalServerError, "internal server error"
	}
}
