package models

import (
	"time"

	"github.com/google/uuid"
)

// Declaration is the beneficial owner declaration status.
type Declaration string

const (
	DeclarationPending  Declaration = "Pending"
	DeclarationDeclared Declaration = "Declared"
)

// ComplianceInformation holds auditor, tax agent and statutory filing
// particulars. A company has at most one.
type ComplianceInformation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"company_id"`

	AuditorName    string  `gorm:"size:255" json:"auditor_name"`
	AuditorLicense string  `gorm:"size:100" json:"auditor_license"`
	AuditorAddress Address `gorm:"embedded;embeddedPrefix:auditor_" json:"auditor_address"`

	TaxAgentName         string  `gorm:"size:255" json:"tax_agent_name"`
	TaxAgentRegistration string  `gorm:"size:100" json:"tax_agent_registration"`
	TaxAgentAddress      Address `gorm:"embedded;embeddedPrefix:tax_agent_" json:"tax_agent_address"`

	// FinancialYearEnd is free text such as "31 December".
	FinancialYearEnd              string      `gorm:"size:20" json:"financial_year_end"`
	LatestAnnualReturnFiled       *time.Time  `json:"latest_annual_return_filed,omitempty"`
	LatestFinancialStatementFiled *time.Time  `json:"latest_financial_statement_filed,omitempty"`
	BeneficialOwnerDeclaration    Declaration `gorm:"size:10;default:Pending" json:"beneficial_owner_declaration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
