// internal/models/offering.go
package models

import (
	"strings"

	"github.com/google/uuid"
)

type Offering struct {
	BaseModel
	Active           bool       `json:"active" gorm:"default:false;index"`
	Name             string     `json:"name" gorm:"size:255;not null"`
	Description      string     `json:"description" gorm:"type:text"`
	Category         string     `json:"category" gorm:"size:50;index"`
	Vertical         string     `json:"vertical" gorm:"size:50;index"`
	BusinessModel    string     `json:"business_model" gorm:"size:50"`
	City             string     `json:"city,omitempty" gorm:"size:100"`
	Country          string     `json:"country,omitempty" gorm:"size:100"`
	Email            *string    `json:"email,omitempty" gorm:"size:255"`
	Phone            *string    `json:"phone,omitempty" gorm:"size:50"`
	Whatsapp         *string    `json:"whatsapp,omitempty" gorm:"size:50"`
	Site             *string    `json:"site,omitempty" gorm:"size:255"`
	PriceRange       *string    `json:"price_range,omitempty" gorm:"size:100"`
	SiteKey          string     `json:"site_key" gorm:"size:255;index"`
	QualityScore     float64    `json:"quality_score" gorm:"type:decimal(3,2);default:0"`
	RatingCount      int64      `json:"rating_count" gorm:"default:0"`
	SourceBatchRowID *uuid.UUID `json:"source_batch_row_id,omitempty" gorm:"type:uuid;index"`
	DuplicateOfID    *uuid.UUID `json:"duplicate_of_id,omitempty" gorm:"type:uuid;index"`
}

// OfferingContact groups the fields that are only revealed after payment.
type OfferingContact struct {
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Whatsapp   *string `json:"whatsapp"`
	Site       *string `json:"site"`
	PriceRange *string `json:"price_range"`
}

func (o *Offering) Contact() OfferingContact {
	return OfferingContact{
		Email:      o.Email,
		Phone:      o.Phone,
		Whatsapp:   o.Whatsapp,
		Site:       o.Site,
		PriceRange: o.PriceRange,
	}
}

// PublicOffering is the pre-payment view of an offering.
type PublicOffering struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Vertical      string    `json:"vertical"`
	BusinessModel string    `json:"business_model"`
	City          string    `json:"city,omitempty"`
	Country       string    `json:"country,omitempty"`
	QualityScore  float64   `json:"quality_score"`
}

func (o *Offering) Public() PublicOffering {
	return PublicOffering{
		ID:            o.ID,
		Name:          o.Name,
		Description:   o.Description,
		Category:      o.Category,
		Vertical:      o.Vertical,
		BusinessModel: o.BusinessModel,
		City:          o.City,
		Country:       o.Country,
		QualityScore:  o.QualityScore,
	}
}

type OfferingRating struct {
	BaseModel
	TransactionID uuid.UUID `json:"transaction_id" gorm:"type:uuid;not null;uniqueIndex:idx_rating_tx_offering"`
	OfferingID    uuid.UUID `json:"offering_id" gorm:"type:uuid;not null;uniqueIndex:idx_rating_tx_offering;index"`
	Rating        int       `json:"rating" gorm:"not null"`
	Comment       string    `json:"comment,omitempty" gorm:"type:text"`
}

// NormalizeSiteKey reduces a site to its bare host for dedup.
func NormalizeSiteKey(site string) string {
	key := strings.ToLower(strings.TrimSpace(site))
	for _, prefix := range []string{"https://", "http://"} {
		key = strings.TrimPrefix(key, prefix)
	}
	key = strings.TrimPrefix(key, "www.")
	if i := strings.IndexAny(key, "/?#"); i >= 0 {
		key = key[:i]
	}
	if i := strings.LastIndex(key, ":"); i >= 0 {
		key = key[:i]
	}
	return strings.TrimSuffix(key, ".")
}
