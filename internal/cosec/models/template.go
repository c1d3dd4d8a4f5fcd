package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentTemplate points at a word-processor template asset. Location is
// either an http(s) URL or a path relative to the configured templates dir.
type DocumentTemplate struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:150;not null" json:"name"`
	Category    string    `gorm:"size:100;index" json:"category"`
	Description string    `gorm:"size:1000" json:"description"`
	Location    string    `gorm:"size:1000;not null" json:"location"`
	// PerDirector makes generation produce one document per director.
	PerDirector bool `json:"per_director"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailTemplate is a named subject/body pair. Both fields are Go text
// templates executed against the message data.
type EmailTemplate struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Subject string    `gorm:"size:255;not null" json:"subject"`
	Body    string    `gorm:"type:text" json:"body"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known email template names.
const (
	EmailTemplateDocument = "document_delivery"
)

// TemplateCategory groups templates for the selection screen.
type TemplateCategory struct {
	Category  string             `json:"category"`
	Templates []DocumentTemplate `json:"templates"`
}
