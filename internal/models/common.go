// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the id client side so postgres and sqlite behave the same.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for free-form JSON columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type PaymentPurpose string

const (
	PaymentPurposePrimary    PaymentPurpose = "primary"
	PaymentPurposeAdditional PaymentPurpose = "additional"
	PaymentPurposeSimilarity PaymentPurpose = "similarity_upsell"
)

func (p PaymentPurpose) Valid() bool {
	switch p {
	case PaymentPurposePrimary, PaymentPurposeAdditional, PaymentPurposeSimilarity:
		return true
	}
	return false
}

type FeedbackKind string

const (
	FeedbackPositive     FeedbackKind = "positive"
	FeedbackAlreadyKnown FeedbackKind = "already_known"
	FeedbackIrrelevant   FeedbackKind = "irrelevant"
)

func (k FeedbackKind) Valid() bool {
	switch k {
	case FeedbackPositive, FeedbackAlreadyKnown, FeedbackIrrelevant:
		return true
	}
	return false
}

// Excludes reports whether feedback of this kind removes the target from future generation.
func (k FeedbackKind) Excludes() bool {
	return k == FeedbackAlreadyKnown || k == FeedbackIrrelevant
}

type PauseReason string

const (
	PauseReasonNone        PauseReason = ""
	PauseReasonManual      PauseReason = "manual"
	PauseReasonRateLimited PauseReason = "rate_limited"
)

// Taxonomy used by batch extraction and matching prompts.
var (
	Categories = []string{
		"software", "marketing", "finance", "legal", "logistics", "hr",
		"manufacturing", "consulting", "design", "education", "health", "other",
	}
	Verticals = []string{
		"retail", "ecommerce", "food_service", "healthcare", "construction",
		"real_estate", "agriculture", "industry", "services", "technology", "general",
	}
	BusinessModels = []string{
		"saas", "agency", "freelancer", "marketplace", "consultancy", "product", "other",
	}
)
