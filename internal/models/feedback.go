// internal/models/feedback.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type SimilarityFeedback struct {
	BaseModel
	TransactionID    uuid.UUID    `json:"transaction_id" gorm:"type:uuid;not null;index:idx_feedback_pair"`
	SourceOfferingID uuid.UUID    `json:"source_offering_id" gorm:"type:uuid;not null;index:idx_feedback_pair"`
	TargetOfferingID uuid.UUID    `json:"target_offering_id" gorm:"type:uuid;not null"`
	Kind             FeedbackKind `json:"feedback_kind" gorm:"type:varchar(20);not null"`
}

// WebhookEvent stores every gateway delivery for audit.
type WebhookEvent struct {
	BaseModel
	Provider        string     `json:"provider" gorm:"size:20;not null;index"`
	EventID         string     `json:"event_id" gorm:"size:191;index"`
	RequestID       string     `json:"request_id" gorm:"size:191"`
	EventType       string     `json:"event_type" gorm:"size:100;index"`
	ResourceID      string     `json:"resource_id" gorm:"size:191;index"`
	PaymentID       string     `json:"payment_id,omitempty" gorm:"size:191"`
	PaymentStatus   string     `json:"payment_status,omitempty" gorm:"size:50"`
	Payload         string     `json:"payload" gorm:"type:text"`
	SignatureValid  bool       `json:"signature_valid" gorm:"default:false"`
	Outcome         string     `json:"outcome" gorm:"size:50"`
	ProcessingError string     `json:"processing_error,omitempty" gorm:"type:text"`
	ProcessedAt     *time.Time `json:"processed_at"`
}
