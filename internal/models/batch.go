// internal/models/batch.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type BatchJob struct {
	BaseModel
	Name           string         `json:"name" gorm:"size:255"`
	SourceURL      string         `json:"source_url,omitempty" gorm:"type:text"`
	TotalCount     int            `json:"total_count" gorm:"not null"`
	ProcessedCount int            `json:"processed_count" gorm:"not null;default:0"`
	SuccessCount   int            `json:"success_count" gorm:"not null;default:0"`
	DuplicateCount int            `json:"duplicate_count" gorm:"not null;default:0"`
	ErrorCount     int            `json:"error_count" gorm:"not null;default:0"`
	Status         BatchJobStatus `json:"status" gorm:"type:varchar(20);default:'awaiting';index"`
	PauseReason    PauseReason    `json:"pause_reason,omitempty" gorm:"type:varchar(20)"`
	LastError      string         `json:"last_error,omitempty" gorm:"type:text"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`

	Rows []BatchRow `json:"rows,omitempty" gorm:"foreignKey:JobID"`
}

type BatchRow struct {
	BaseModel
	JobID            uuid.UUID                         `json:"job_id" gorm:"type:uuid;not null;index"`
	Position         int                               `json:"position" gorm:"not null;index"`
	Input            datatypes.JSONType[BatchRowInput] `json:"input"`
	Status           BatchRowStatus                    `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ResultOfferingID *uuid.UUID                        `json:"result_offering_id,omitempty" gorm:"type:uuid"`
	Duplicate        bool                              `json:"duplicate" gorm:"default:false"`
	ErrorMessage     string                            `json:"error_message,omitempty" gorm:"type:text"`
	Attempts         int                               `json:"attempts" gorm:"default:0"`
	StartedAt        *time.Time                        `json:"started_at"`
	FinishedAt       *time.Time                        `json:"finished_at"`
}

// BatchRowInput is one uploaded catalog candidate.
type BatchRowInput struct {
	Name  string `json:"name"`
	Site  string `json:"site"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	City  string `json:"city,omitempty"`
	Notes string `json:"notes,omitempty"`
}
