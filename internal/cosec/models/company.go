// Package models defines the company-secretarial records kept by the service.
// The same structs are persisted through GORM, so they carry its tags.
package models

import (
	"strings"
	"time"

	"github.com/gartstein/cosec/internal/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Branch is the secretarial branch that looks after a company.
type Branch string

const (
	BranchHQ       Branch = "HQ"
	BranchCheras   Branch = "CHERAS"
	BranchShahAlam Branch = "SHAH ALAM"
	BranchSkudai   Branch = "SKUDAI"
	BranchKuantan  Branch = "KUANTAN"

	DefaultBranch = BranchHQ
)

// Field limits enforced before a write reaches the store.
const (
	PostcodeLength        = 5
	MaxNameLength         = 255
	MaxRegistrationLength = 50
)

// Valid reports whether b is one of the known branches.
func (b Branch) Valid() bool {
	switch b {
	case BranchHQ, BranchCheras, BranchShahAlam, BranchSkudai, BranchKuantan:
		return true
	}
	return false
}

// Company is the root record. Every other record belongs to exactly one company
// and is removed together with it.
type Company struct {
	// ID is the internal identifier.
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// Name is the registered company name, stored uppercase.
	Name string `gorm:"size:255" json:"name"`
	// RegistrationNumber is the SSM registration identifier. It is unique and
	// cannot be changed once assigned.
	RegistrationNumber string `gorm:"size:50;uniqueIndex;not null" json:"registration_number"`
	// IncorporationDate drives the anniversary reminders; it may be unknown.
	IncorporationDate *time.Time `json:"incorporation_date,omitempty"`
	Branch            Branch     `gorm:"size:50;default:HQ" json:"branch"`

	AddressLine1 string `gorm:"size:255" json:"address_line1"`
	AddressLine2 string `gorm:"size:255" json:"address_line2"`
	AddressLine3 string `gorm:"size:255" json:"address_line3"`
	Postcode     string `gorm:"size:5" json:"postcode"`
	Town         string `gorm:"size:100" json:"town"`
	State        string `gorm:"size:100" json:"state"`

	NatureOfBusiness1 string `gorm:"size:255" json:"nature_of_business_1"`
	NatureOfBusiness2 string `gorm:"size:255" json:"nature_of_business_2"`
	NatureOfBusiness3 string `gorm:"size:255" json:"nature_of_business_3"`

	Directors     []Director             `gorm:"constraint:OnDelete:CASCADE" json:"directors,omitempty"`
	Shareholders  []Shareholder          `gorm:"constraint:OnDelete:CASCADE" json:"shareholders,omitempty"`
	ContactPerson *ContactPerson         `gorm:"constraint:OnDelete:CASCADE" json:"contact_person,omitempty"`
	Compliance    *ComplianceInformation `gorm:"constraint:OnDelete:CASCADE" json:"compliance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize uppercases the name, registration and address fields.
func (c *Company) Normalize() {
	for _, f := range []*string{
		&c.Name, &c.RegistrationNumber,
		&c.AddressLine1, &c.AddressLine2, &c.AddressLine3,
		&c.Postcode, &c.Town, &c.State,
		&c.NatureOfBusiness1, &c.NatureOfBusiness2, &c.NatureOfBusiness3,
	} {
		*f = strings.ToUpper(strings.TrimSpace(*f))
	}
}

// BeforeSave keeps stored values uppercase whichever path wrote them.
func (c *Company) BeforeSave(_ *gorm.DB) error {
	c.Normalize()
	return nil
}

// DisplayName falls back to a placeholder for companies saved without a name.
func (c *Company) DisplayName() string {
	if c.Name == "" {
		return "UNNAMED COMPANY"
	}
	return c.Name
}

// RecipientEmails is the deduplicated union of director emails and the
// contact person's email. Directors and contact must be loaded.
func (c *Company) RecipientEmails() []string {
	var all []string
	for _, d := range c.Directors {
		all = append(all, d.Email)
	}
	if c.ContactPerson != nil {
		all = append(all, c.ContactPerson.Email)
	}
	return utils.DedupeEmails(all)
}

// CompanyUpdate represents the fields that can be updated for a Company.
// Pointer types are used to allow partial updates.
type CompanyUpdate struct {
	ID                 uuid.UUID
	Name               *string
	RegistrationNumber *string
	IncorporationDate  *time.Time
	Branch             *Branch
	AddressLine1       *string
	AddressLine2       *string
	AddressLine3       *string
	Postcode           *string
	Town               *string
	State              *string
	NatureOfBusiness1  *string
	NatureOfBusiness2  *string
	NatureOfBusiness3  *string
}

// Columns returns the column/value pairs that are set on the update, with
// string values uppercased the same way Company.Normalize does.
func (u *CompanyUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	str := map[string]*string{
		"name":                u.Name,
		"address_line1":       u.AddressLine1,
		"address_line2":       u.AddressLine2,
		"address_line3":       u.AddressLine3,
		"postcode":            u.Postcode,
		"town":                u.Town,
		"state":               u.State,
		"nature_of_business1": u.NatureOfBusiness1,
		"nature_of_business2": u.NatureOfBusiness2,
		"nature_of_business3": u.NatureOfBusiness3,
	}
	for col, v := range str {
		if v != nil {
			cols[col] = strings.ToUpper(strings.TrimSpace(*v))
		}
	}
	if u.IncorporationDate != nil {
		cols["incorporation_date"] = *u.IncorporationDate
	}
	if u.Branch != nil {
		cols["branch"] = *u.Branch
	}
	return cols
}

// ListFilter narrows ListCompanies. Search matches part of the name or the
// registration number, ignoring case.
type ListFilter struct {
	Branch Branch
	Search string
	Limit  int
	Offset int
}
