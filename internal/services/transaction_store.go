// internal/services/transaction_store.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/models"
)

const maxVersionRetries = 5

// transactionStore serializes writes to one transaction row through the
// version column. The entity store gives no locks, so every writer re-reads,
// applies its mutation and writes only if nobody else wrote in between.
type transactionStore struct {
	db *gorm.DB
}

// mutation applies a change in memory and reports whether anything changed.
// It may be called more than once when a concurrent writer wins.
type mutation func(t *models.Transaction) (bool, error)

func (s transactionStore) load(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("transaction")
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &t, nil
}

func (s transactionStore) loadBySession(ctx context.Context, sessionID string) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("transaction")
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &t, nil
}

func (s transactionStore) loadByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.WithContext(ctx).First(&t, "external_reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("transaction")
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &t, nil
}

// update re-reads the transaction, applies mutate and writes it back guarded
// by the version it read. It returns the stored row and whether this call
// wrote it.
func (s transactionStore) update(ctx context.Context, id uuid.UUID, mutate mutation) (*models.Transaction, bool, error) {
	for attempt := 1; attempt <= maxVersionRetries; attempt++ {
		t, err := s.load(ctx, id)
		if err != nil {
			return nil, false, err
		}

		changed, err := mutate(t)
		if err != nil {
			return t, false, err
		}
		if !changed {
			return t, false, nil
		}

		readVersion := t.Version
		t.Version = readVersion + 1
		t.UpdatedAt = time.Now()

		result := s.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ? AND version = ?", id, readVersion).
			Select("*").Omit("id", "created_at", "deleted_at").
			Updates(t)
		if result.Error != nil {
			return nil, false, fmt.Errorf("failed to update transaction: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			return t, true, nil
		}

		logrus.WithFields(logrus.Fields{
			"transaction_id": id,
			"version":        readVersion,
			"attempt":        attempt,
		}).Debug("Transaction version conflict, re-reading")
	}

	return nil, false, fmt.Errorf("transaction %s: %w", id, ErrConcurrentUpdate)
}

// SuggestionView is a suggested match without contact fields.
type SuggestionView struct {
	models.PublicOffering
	MatchScore          int    `json:"match_score"`
	PersonalizedSummary string `json:"personalized_summary"`
}

// TransactionView is what clients see. Contact data only appears in Unlocked
// and in paid similar items.
type TransactionView struct {
	ID                 uuid.UUID                 `json:"id"`
	SessionID          string                    `json:"session_id"`
	ProblemStatement   string                    `json:"problem_statement"`
	Suggested          []SuggestionView          `json:"suggested"`
	ApprovedAdditional []models.PublicOffering   `json:"approved_additional"`
	SelectedIDs        []uuid.UUID               `json:"selected_ids"`
	UnitPrice          decimal.Decimal           `json:"unit_price"`
	TotalAmount        decimal.Decimal           `json:"total_amount"`
	Currency           string                    `json:"currency"`
	PaymentStatus      models.PaymentStatus      `json:"payment_status"`
	CheckoutURL        string                    `json:"checkout_url,omitempty"`
	PaidAt             *time.Time                `json:"paid_at,omitempty"`
	Unlocked           []models.UnlockedOffering `json:"unlocked"`
	SimilarUnlocks     []models.SimilarUnlock    `json:"similar_unlocks"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// buildView resolves offering ids against the catalog. Offerings removed
// from the catalog after matching are skipped.
func buildView(ctx context.Context, catalog *CatalogService, t *models.Transaction) (*TransactionView, error) {
	ids := make([]uuid.UUID, 0, len(t.Suggested)+len(t.ApprovedAdditionalIDs))
	for _, s := range t.Suggested {
		ids = append(ids, s.OfferingID)
	}
	ids = append(ids, t.ApprovedAdditionalIDs...)

	offerings, err := catalog.GetOfferings(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &TransactionView{
		ID:                 t.ID,
		SessionID:          t.SessionID,
		ProblemStatement:   t.ProblemStatement,
		Suggested:          make([]SuggestionView, 0, len(t.Suggested)),
		ApprovedAdditional: make([]models.PublicOffering, 0, len(t.ApprovedAdditionalIDs)),
		SelectedIDs:        append([]uuid.UUID{}, t.SelectedIDs...),
		UnitPrice:          t.UnitPrice,
		TotalAmount:        t.TotalAmount,
		Currency:           t.Currency,
		PaymentStatus:      t.PaymentStatus,
		CheckoutURL:        t.GatewayCheckoutURL,
		PaidAt:             t.PaidAt,
		Unlocked:           append([]models.UnlockedOffering{}, t.Unlocked...),
		SimilarUnlocks:     make([]models.SimilarUnlock, 0, len(t.SimilarUnlocks)),
		CreatedAt:          t.CreatedAt,
	}

	for _, s := range t.Suggested {
		o, ok := offerings[s.OfferingID]
		if !ok {
			continue
		}
		view.Suggested = append(view.Suggested, SuggestionView{
			PublicOffering:      o.Public(),
			MatchScore:          s.MatchScore,
			PersonalizedSummary: s.PersonalizedSummary,
		})
	}
	for _, id := range t.ApprovedAdditionalIDs {
		if o, ok := offerings[id]; ok {
			view.ApprovedAdditional = append(view.ApprovedAdditional, o.Public())
		}
	}
	for _, entry := range t.SimilarUnlocks {
		view.SimilarUnlocks = append(view.SimilarUnlocks, redactSimilar(entry))
	}

	return view, nil
}

// redactSimilar nulls contact fields on every item that was not paid for.
func redactSimilar(entry models.SimilarUnlock) models.SimilarUnlock {
	paid := make(map[uuid.UUID]bool, len(entry.UnlockedIDs))
	if entry.Paid {
		for _, id := range entry.UnlockedIDs {
			paid[id] = true
		}
	}

	out := entry
	out.Items = make([]models.SimilarItem, len(entry.Items))
	for i, item := range entry.Items {
		if !paid[item.OfferingID] {
			item.Contact = nil
		}
		out.Items[i] = item
	}
	return out
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
