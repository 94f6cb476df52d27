// internal/services/catalog_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

// CatalogService is the read accessor over offerings shared by matching,
// similarity and batch enrichment. Nothing is cached; every call re-reads.
type CatalogService struct {
	db     *gorm.DB
	config *config.Config
}

// CatalogSnapshot is the active catalog as read at TakenAt. Version changes
// whenever an offering is added, activated or edited.
type CatalogSnapshot struct {
	Version   string            `json:"version"`
	TakenAt   time.Time         `json:"taken_at"`
	Offerings []models.Offering `json:"offerings"`
}

type RateOfferingRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"max=2000"`
}

type DedupReport struct {
	Scanned    int         `json:"scanned"`
	Duplicates int         `json:"duplicates"`
	Flagged    []uuid.UUID `json:"flagged"`
}

func NewCatalogService(db *gorm.DB, config *config.Config) *CatalogService {
	return &CatalogService{
		db:     db,
		config: config,
	}
}

func (s *CatalogService) Snapshot(ctx context.Context) (*CatalogSnapshot, error) {
	var offerings []models.Offering
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("quality_score DESC").Order("name ASC").
		Find(&offerings).Error; err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	var latest time.Time
	for _, o := range offerings {
		if o.UpdatedAt.After(latest) {
			latest = o.UpdatedAt
		}
	}

	return &CatalogSnapshot{
		Version:   fmt.Sprintf("%d-%d", len(offerings), latest.UnixNano()),
		TakenAt:   time.Now(),
		Offerings: offerings,
	}, nil
}

func (s *CatalogService) GetOffering(ctx context.Context, id uuid.UUID) (*models.Offering, error) {
	var offering models.Offering
	if err := s.db.WithContext(ctx).First(&offering, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("offering")
		}
		return nil, fmt.Errorf("failed to load offering: %w", err)
	}
	return &offering, nil
}

// GetOfferings loads offerings by id, including soft-deleted ones, so that a
// paid selection can always be materialized.
func (s *CatalogService) GetOfferings(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Offering, error) {
	result := make(map[uuid.UUID]models.Offering, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var offerings []models.Offering
	if err := s.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&offerings).Error; err != nil {
		return nil, fmt.Errorf("failed to load offerings: %w", err)
	}
	for _, o := range offerings {
		result[o.ID] = o
	}
	return result, nil
}

// FindActiveBySiteKey returns nil when no active offering uses the key.
func (s *CatalogService) FindActiveBySiteKey(ctx context.Context, siteKey string) (*models.Offering, error) {
	if siteKey == "" {
		return nil, nil
	}

	var offering models.Offering
	err := s.db.WithContext(ctx).
		Where("active = ? AND site_key = ?", true, siteKey).
		Order("created_at ASC").
		First(&offering).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up site key: %w", err)
	}
	return &offering, nil
}

// FindBySourceRow returns the offering a batch row already created, if any.
func (s *CatalogService) FindBySourceRow(ctx context.Context, rowID uuid.UUID) (*models.Offering, error) {
	var offering models.Offering
	err := s.db.WithContext(ctx).Where("source_batch_row_id = ?", rowID).First(&offering).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up batch row offering: %w", err)
	}
	return &offering, nil
}

func (s *CatalogService) ListPending(ctx context.Context, params utils.PaginationParams) ([]models.Offering, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Offering{}).
		Where("active = ? AND duplicate_of_id IS NULL", false)

	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("(name LIKE ? OR site_key LIKE ?)", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count offerings: %w", err)
	}

	allowedSortFields := []string{"created_at", "name", "category", "vertical"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var offerings []models.Offering
	if err := query.Find(&offerings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch offerings: %w", err)
	}

	return offerings, total, nil
}

// Activate publishes a pending offering. Flagged duplicates cannot be
// activated.
func (s *CatalogService) Activate(ctx context.Context, id uuid.UUID) (*models.Offering, error) {
	offering, err := s.GetOffering(ctx, id)
	if err != nil {
		return nil, err
	}
	if offering.Active {
		return offering, nil
	}
	if offering.DuplicateOfID != nil {
		return nil, invalidSelection("offering %s duplicates %s", offering.ID, *offering.DuplicateOfID)
	}

	if err := s.db.WithContext(ctx).Model(offering).Update("active", true).Error; err != nil {
		return nil, fmt.Errorf("failed to activate offering: %w", err)
	}
	offering.Active = true

	logrus.WithField("offering_id", id).Info("Offering activated")
	return offering, nil
}

// DedupPass flags inactive offerings whose site key is already used by an
// earlier offering. Concurrent batch advances can create such rows; they are
// never activated automatically.
func (s *CatalogService) DedupPass(ctx context.Context) (*DedupReport, error) {
	var candidates []models.Offering
	if err := s.db.WithContext(ctx).
		Where("active = ? AND duplicate_of_id IS NULL AND site_key <> ?", false, "").
		Order("created_at ASC").
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load dedup candidates: %w", err)
	}

	report := &DedupReport{Scanned: len(candidates), Flagged: []uuid.UUID{}}
	for _, candidate := range candidates {
		var original models.Offering
		err := s.db.WithContext(ctx).
			Where("site_key = ? AND id <> ? AND duplicate_of_id IS NULL", candidate.SiteKey, candidate.ID).
			Where("(active = ? OR created_at < ?)", true, candidate.CreatedAt).
			Order("active DESC").Order("created_at ASC").
			First(&original).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up original for %s: %w", candidate.ID, err)
		}

		if err := s.db.WithContext(ctx).Model(&models.Offering{}).
			Where("id = ? AND duplicate_of_id IS NULL", candidate.ID).
			Update("duplicate_of_id", original.ID).Error; err != nil {
			return nil, fmt.Errorf("failed to flag duplicate %s: %w", candidate.ID, err)
		}
		report.Duplicates++
		report.Flagged = append(report.Flagged, candidate.ID)
	}

	logrus.WithFields(logrus.Fields{
		"scanned":    report.Scanned,
		"duplicates": report.Duplicates,
	}).Info("Dedup pass completed")

	return report, nil
}

// RecordRating stores a post-purchase rating and refreshes the offering's
// quality score. Only unlocked offerings can be rated, once per transaction.
func (s *CatalogService) RecordRating(ctx context.Context, transaction *models.Transaction, offeringID uuid.UUID, req *RateOfferingRequest) (*models.Offering, error) {
	if !transaction.IsUnlocked(offeringID) {
		return nil, invalidSelection("offering %s is not unlocked on this transaction", offeringID)
	}

	rating := &models.OfferingRating{
		TransactionID: transaction.ID,
		OfferingID:    offeringID,
		Rating:        req.Rating,
		Comment:       req.Comment,
	}
	if err := s.db.WithContext(ctx).Create(rating).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, invalidSelection("offering %s was already rated on this transaction", offeringID)
		}
		return nil, fmt.Errorf("failed to save rating: %w", err)
	}

	var aggregate struct {
		Average float64
		Count   int64
	}
	if err := s.db.WithContext(ctx).Model(&models.OfferingRating{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("offering_id = ?", offeringID).
		Scan(&aggregate).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Offering{}).
		Where("id = ?", offeringID).
		Updates(map[string]interface{}{
			"quality_score": aggregate.Average,
			"rating_count":  aggregate.Count,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to update quality score: %w", err)
	}

	return s.GetOffering(ctx, offeringID)
}
