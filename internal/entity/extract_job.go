package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-digitizer/constants"
)

// ExtractJob tracks one file of a batch run.
type ExtractJob struct {
	ID           uuid.UUID           `json:"id"`
	Path         string              `json:"path"`
	TemplateName string              `json:"template_name"`
	Status       constants.JobStatus `json:"status"`
	RecordID     *uuid.UUID          `json:"record_id,omitempty"`
	Degraded     bool                `json:"degraded"`
	Filled       int                 `json:"filled"`
	ErrorMessage string              `json:"error_message,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}
