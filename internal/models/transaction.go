// internal/models/transaction.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Transaction struct {
	BaseModel
	SessionID        string `json:"session_id" gorm:"size:100;not null;uniqueIndex"`
	Version          int64  `json:"version" gorm:"not null;default:0"`
	ProblemStatement string `json:"problem_statement" gorm:"type:text;not null"`
	ClientEmail      string `json:"client_email" gorm:"size:255;index"`
	ClientProfile    JSONB  `json:"client_profile" gorm:"type:jsonb"`

	Suggested             datatypes.JSONSlice[SuggestedMatch] `json:"suggested"`
	ApprovedAdditionalIDs datatypes.JSONSlice[uuid.UUID]      `json:"approved_additional_ids"`
	SelectedIDs           datatypes.JSONSlice[uuid.UUID]      `json:"selected_ids"`

	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(10,2);not null"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(10,2);not null"`
	Currency    string          `json:"currency" gorm:"size:3;not null"`

	PaymentStatus        PaymentStatus `json:"payment_status" gorm:"type:varchar(20);default:'pending';index"`
	GatewayPreferenceID  string        `json:"gateway_preference_id,omitempty" gorm:"size:255"`
	GatewayCheckoutURL   string        `json:"gateway_checkout_url,omitempty" gorm:"type:text"`
	GatewayPaymentID     string        `json:"gateway_payment_id,omitempty" gorm:"size:255;index"`
	GatewayPaymentStatus string        `json:"gateway_payment_status,omitempty" gorm:"size:50"`
	ExternalReference    string        `json:"external_reference" gorm:"size:64;index"`
	PaidAt               *time.Time    `json:"paid_at"`

	Unlocked       datatypes.JSONSlice[UnlockedOffering] `json:"unlocked"`
	SimilarUnlocks datatypes.JSONSlice[SimilarUnlock]    `json:"similar_unlocks"`
}

// SuggestedMatch is one ranked catalog match produced at creation time.
type SuggestedMatch struct {
	OfferingID          uuid.UUID `json:"offering_id"`
	MatchScore          int       `json:"match_score"`
	PersonalizedSummary string    `json:"personalized_summary"`
}

// UnlockedOffering is the snapshot revealed after payment.
type UnlockedOffering struct {
	OfferingID  uuid.UUID       `json:"offering_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Vertical    string          `json:"vertical"`
	City        string          `json:"city,omitempty"`
	Country     string          `json:"country,omitempty"`
	Contact     OfferingContact `json:"contact"`
	Purpose     PaymentPurpose  `json:"purpose"`
	UnlockedAt  time.Time       `json:"unlocked_at"`
}

// SimilarUnlock caches one similarity generation per source offering and
// records whether it was paid for.
type SimilarUnlock struct {
	SourceOfferingID uuid.UUID     `json:"source_offering_id"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Items            []SimilarItem `json:"similar_offerings"`
	Paid             bool          `json:"paid"`
	UnlockedAt       *time.Time    `json:"unlocked_at,omitempty"`
	UnlockedIDs      []uuid.UUID   `json:"unlocked_ids,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	// Raw gateway status of the latest payment seen for this entry.
	GatewayPaymentStatus string `json:"gateway_payment_status,omitempty"`
	PreferenceID         string `json:"preference_id,omitempty"`
}

// SimilarItem is one similarity recommendation enriched with catalog data.
type SimilarItem struct {
	OfferingID      uuid.UUID        `json:"offering_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	Vertical        string           `json:"vertical"`
	SimilarityScore int              `json:"similarity_score"`
	Rationale       string           `json:"rationale"`
	MatchReasons    []string         `json:"match_reasons"`
	Contact         *OfferingContact `json:"contact"`
}

func (t *Transaction) IsPaid() bool {
	return t.PaymentStatus == PaymentStatusPaid
}

// SelectableIDs is suggested ∪ approved additional.
func (t *Transaction) SelectableIDs() map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool, len(t.Suggested)+len(t.ApprovedAdditionalIDs))
	for _, s := range t.Suggested {
		ids[s.OfferingID] = true
	}
	for _, id := range t.ApprovedAdditionalIDs {
		ids[id] = true
	}
	return ids
}

func (t *Transaction) UnlockedIDs() map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool, len(t.Unlocked))
	for _, u := range t.Unlocked {
		ids[u.OfferingID] = true
	}
	return ids
}

func (t *Transaction) IsUnlocked(offeringID uuid.UUID) bool {
	for _, u := range t.Unlocked {
		if u.OfferingID == offeringID {
			return true
		}
	}
	return false
}

// SimilarUnlockFor returns the index of the entry for a source offering, or -1.
func (t *Transaction) SimilarUnlockFor(sourceID uuid.UUID) int {
	for i, s := range t.SimilarUnlocks {
		if s.SourceOfferingID == sourceID {
			return i
		}
	}
	return -1
}

// AppendUnlocked appends snapshots not yet present and returns the ones added.
func (t *Transaction) AppendUnlocked(snapshots []UnlockedOffering) []UnlockedOffering {
	present := t.UnlockedIDs()
	var added []UnlockedOffering
	for _, s := range snapshots {
		if present[s.OfferingID] {
			continue
		}
		present[s.OfferingID] = true
		t.Unlocked = append(t.Unlocked, s)
		added = append(added, s)
	}
	return added
}

// ComputeTotal is count(selected) x unit price.
func ComputeTotal(count int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(count))).Round(2)
}
