package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShareCategory is the class of shares a shareholder holds.
type ShareCategory string

const (
	ShareOrdinary   ShareCategory = "ordinary"
	SharePreference ShareCategory = "preference"
	ShareOther      ShareCategory = "other"
)

// Valid reports whether s is a known category.
func (s ShareCategory) Valid() bool {
	switch s {
	case ShareOrdinary, SharePreference, ShareOther:
		return true
	}
	return false
}

// Address is the postal address block shared by people records.
type Address struct {
	AddressLine1 string `gorm:"size:255" json:"address_line1"`
	AddressLine2 string `gorm:"size:255" json:"address_line2"`
	AddressLine3 string `gorm:"size:255" json:"address_line3"`
	Postcode     string `gorm:"size:5" json:"postcode"`
	Town         string `gorm:"size:100" json:"town"`
	State        string `gorm:"size:100" json:"state"`
}

// Director is an officer of a company.
type Director struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID      uuid.UUID `gorm:"type:uuid;index;not null" json:"company_id"`
	FullName       string    `gorm:"size:255;not null" json:"full_name"`
	IdentityNumber string    `gorm:"size:50" json:"identity_number"`
	Address        `gorm:"embedded"`
	PhoneNumber    string `gorm:"size:50" json:"phone_number"`
	Email          string `gorm:"size:254" json:"email"`

	AppointmentDate time.Time  `json:"appointment_date"`
	ResignationDate *time.Time `json:"resignation_date,omitempty"`

	// IsShareholder, when set on a write, causes a Shareholder copy to be
	// created once for the same company and identity.
	IsShareholder   bool `json:"is_shareholder"`
	IsContactPerson bool `json:"is_contact_person"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DirectorUpdate carries a partial update of a Director.
type DirectorUpdate struct {
	ID              uuid.UUID
	FullName        *string
	IdentityNumber  *string
	PhoneNumber     *string
	Email           *string
	ResignationDate *time.Time
	IsShareholder   *bool
	IsContactPerson *bool
}

// Columns returns the column/value pairs that are set on the update. Text
// values are trimmed the same way AddDirector trims them.
func (u *DirectorUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	str := map[string]*string{
		"full_name":       u.FullName,
		"identity_number": u.IdentityNumber,
		"phone_number":    u.PhoneNumber,
		"email":           u.Email,
	}
	for col, v := range str {
		if v != nil {
			cols[col] = strings.TrimSpace(*v)
		}
	}
	if u.ResignationDate != nil {
		cols["resignation_date"] = *u.ResignationDate
	}
	if u.IsShareholder != nil {
		cols["is_shareholder"] = *u.IsShareholder
	}
	if u.IsContactPerson != nil {
		cols["is_contact_person"] = *u.IsContactPerson
	}
	return cols
}

// Shareholder is a holder of shares in a company.
type Shareholder struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID       uuid.UUID `gorm:"type:uuid;index;not null" json:"company_id"`
	FullName        string    `gorm:"size:255;not null" json:"full_name"`
	IdentityNumber  string    `gorm:"size:50" json:"identity_number"`
	Address         `gorm:"embedded"`
	PhoneNumber     string        `gorm:"size:50" json:"phone_number"`
	Email           string        `gorm:"size:254" json:"email"`
	IsContactPerson bool          `json:"is_contact_person"`
	Shareholding    int64         `gorm:"check:shareholding >= 0" json:"shareholding"`
	Category        ShareCategory `gorm:"size:50;default:ordinary" json:"category"`

	// SourceDirectorID is set on the copy made from a director; a director
	// is copied at most once.
	SourceDirectorID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"source_director_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShareholderFromDirector builds the one-time shareholder copy of a director.
// The holding starts at zero and must be filled in afterwards.
func ShareholderFromDirector(d *Director) *Shareholder {
	source := d.ID
	return &Shareholder{
		ID:             uuid.New(),
		CompanyID:      d.CompanyID,
		FullName:       d.FullName,
		IdentityNumber: d.IdentityNumber,
		Address:        d.Address,
		PhoneNumber:    d.PhoneNumber,
		Email:          d.Email,
		Shareholding:   0,
		Category:       ShareOrdinary,

		SourceDirectorID: &source,
	}
}

// ContactPerson is the single point of contact for a company.
type ContactPerson struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"company_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Position    string    `gorm:"size:100" json:"position"`
	PhoneNumber string    `gorm:"size:20" json:"phone_number"`
	Email       string    `gorm:"size:254" json:"email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
