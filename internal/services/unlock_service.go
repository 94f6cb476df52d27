// internal/services/unlock_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/metrics"
	"github.com/javajoker/vendormatch-backend/internal/models"
)

// UnlockService owns the selection and unlock fields of a transaction.
type UnlockService struct {
	store         transactionStore
	config        *config.Config
	catalog       *CatalogService
	notifications *NotificationService
}

type SelectOfferingsRequest struct {
	OfferingIDs []uuid.UUID `json:"offering_ids" validate:"required,min=1,dive,required"`
}

type ApproveAdditionalRequest struct {
	OfferingIDs []uuid.UUID `json:"offering_ids" validate:"required,min=1,dive,required"`
}

type UnlockResult struct {
	Transaction *models.Transaction       `json:"-"`
	Added       []models.UnlockedOffering `json:"added"`
}

func NewUnlockService(db *gorm.DB, config *config.Config, catalog *CatalogService, notifications *NotificationService) *UnlockService {
	return &UnlockService{
		store:         transactionStore{db: db},
		config:        config,
		catalog:       catalog,
		notifications: notifications,
	}
}

func (s *UnlockService) Get(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	return s.store.load(ctx, transactionID)
}

func (s *UnlockService) GetBySession(ctx context.Context, sessionID string) (*models.Transaction, error) {
	return s.store.loadBySession(ctx, sessionID)
}

func (s *UnlockService) View(ctx context.Context, transaction *models.Transaction) (*TransactionView, error) {
	return buildView(ctx, s.catalog, transaction)
}

// SelectOfferings replaces the selection. Ids must come from the suggestions
// or the approved additional set, and the total is recomputed here.
func (s *UnlockService) SelectOfferings(ctx context.Context, transactionID uuid.UUID, ids []uuid.UUID) (*models.Transaction, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, invalidSelection("select at least one offering")
	}
	if len(ids) > s.config.Payment.MaxSelection {
		return nil, invalidSelection("at most %d offerings can be selected", s.config.Payment.MaxSelection)
	}

	t, _, err := s.store.update(ctx, transactionID, func(t *models.Transaction) (bool, error) {
		if t.IsPaid() {
			return false, &ServiceError{Kind: ErrAlreadyPaid, Message: "transaction is already paid"}
		}

		selectable := t.SelectableIDs()
		for _, id := range ids {
			if !selectable[id] {
				return false, invalidSelection("offering %s was not suggested or approved for this transaction", id)
			}
		}

		t.SelectedIDs = append([]uuid.UUID{}, ids...)
		t.TotalAmount = models.ComputeTotal(len(t.SelectedIDs), t.UnitPrice)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"selected":       len(ids),
		"total_amount":   t.TotalAmount.StringFixed(2),
	}).Info("Selection updated")

	return t, nil
}

// ApproveAdditional adds active catalog offerings beyond the suggestions to
// the selectable set. They are paid for separately with the additional purpose.
func (s *UnlockService) ApproveAdditional(ctx context.Context, transactionID uuid.UUID, ids []uuid.UUID) (*models.Transaction, error) {
	ids = uniqueIDs(ids)
	offerings, err := s.catalog.GetOfferings(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		o, ok := offerings[id]
		if !ok || !o.Active || o.DeletedAt.Valid {
			return nil, invalidSelection("offering %s is not available", id)
		}
	}

	t, _, err := s.store.update(ctx, transactionID, func(t *models.Transaction) (bool, error) {
		selectable := t.SelectableIDs()
		changed := false
		for _, id := range ids {
			if selectable[id] {
				continue
			}
			t.ApprovedAdditionalIDs = append(t.ApprovedAdditionalIDs, id)
			selectable[id] = true
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// MaterializeUnlock appends contact snapshots for ids not yet unlocked. The
// notification goes out only when this call appended something, so a retried
// call sends nothing.
func (s *UnlockService) MaterializeUnlock(ctx context.Context, transactionID uuid.UUID, ids []uuid.UUID, purpose models.PaymentPurpose) (*UnlockResult, error) {
	snapshots, err := s.snapshots(ctx, uniqueIDs(ids), purpose)
	if err != nil {
		return nil, err
	}

	var added []models.UnlockedOffering
	t, wrote, err := s.store.update(ctx, transactionID, func(t *models.Transaction) (bool, error) {
		added = t.AppendUnlocked(snapshots)
		return len(added) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	if !wrote {
		added = nil
	}

	s.afterUnlock(ctx, t, added, purpose)
	return &UnlockResult{Transaction: t, Added: added}, nil
}

// snapshots builds the post-payment view of each offering. Internal fields
// (quality score, batch linkage, dedup keys) are left out.
func (s *UnlockService) snapshots(ctx context.Context, ids []uuid.UUID, purpose models.PaymentPurpose) ([]models.UnlockedOffering, error) {
	offerings, err := s.catalog.GetOfferings(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := make([]models.UnlockedOffering, 0, len(ids))
	for _, id := range ids {
		o, ok := offerings[id]
		if !ok {
			return nil, integrityViolation("offering %s no longer exists", id)
		}
		result = append(result, models.UnlockedOffering{
			OfferingID:  o.ID,
			Name:        o.Name,
			Description: o.Description,
			Category:    o.Category,
			Vertical:    o.Vertical,
			City:        o.City,
			Country:     o.Country,
			Contact:     o.Contact(),
			Purpose:     purpose,
			UnlockedAt:  now,
		})
	}
	return result, nil
}

func (s *UnlockService) afterUnlock(ctx context.Context, t *models.Transaction, added []models.UnlockedOffering, purpose models.PaymentPurpose) {
	if len(added) == 0 {
		return
	}
	metrics.UnlockedOfferings.WithLabelValues(string(purpose)).Add(float64(len(added)))

	logrus.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"purpose":        purpose,
		"added":          len(added),
		"unlocked":       len(t.Unlocked),
	}).Info("Offerings unlocked")

	s.notifications.SendUnlockNotification(ctx, t, added)
}

// RateOffering records a client's rating of an unlocked offering.
func (s *UnlockService) RateOffering(ctx context.Context, transactionID, offeringID uuid.UUID, req *RateOfferingRequest) (*models.Offering, error) {
	t, err := s.store.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	offering, err := s.catalog.RecordRating(ctx, t, offeringID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to rate offering: %w", err)
	}
	return offering, nil
}
