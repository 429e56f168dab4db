package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FormRecord is a persisted extraction result. Data holds the payload exactly
// as stored; it may predate the current template and is normalized on read.
type FormRecord struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        string          `json:"owner_id"`
	TemplateName   string          `json:"template_name"`
	SourceFilename string          `json:"source_filename"`
	Data           json.RawMessage `json:"data"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FormView is a record whose payload has been normalized to its template.
type FormView struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        string     `json:"owner_id"`
	TemplateName   string     `json:"template_name"`
	SourceFilename string     `json:"source_filename"`
	Fields         FormFields `json:"fields"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
