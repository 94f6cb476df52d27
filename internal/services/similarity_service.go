// internal/services/similarity_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/inference"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

const (
	similarityCacheTTL      = 24 * time.Hour
	similarityMaxCandidates = 50
	similarityMinScore      = 70
	similarityMinResults    = 3
	similarityMaxResults    = 5
	similarityMaxReasons    = 3
)

const similaritySystemPrompt = `You recommend alternative vendors similar to one the client already bought.
Only use offerings from the candidate list and copy their ids exactly.
Return between 3 and 5 offerings in the same category and vertical as the source with a similarity score of at least 70.
For each give a short rationale and 2 or 3 match reasons.
Never include websites, emails, phone numbers or whatsapp in any text.`

type SimilarityService struct {
	db        *gorm.DB
	store     transactionStore
	config    *config.Config
	catalog   *CatalogService
	payments  *PaymentService
	inference inference.Client
}

type GenerateSimilarRequest struct {
	SourceOfferingID uuid.UUID `json:"source_offering_id" validate:"required"`
}

type SimilarityCheckoutRequest struct {
	SourceOfferingID uuid.UUID   `json:"source_offering_id" validate:"required"`
	OfferingIDs      []uuid.UUID `json:"offering_ids" validate:"required,min=1,dive,required"`
	PayerEmail       string      `json:"payer_email,omitempty" validate:"omitempty,email"`
}

type FeedbackRequest struct {
	SourceOfferingID uuid.UUID           `json:"source_offering_id" validate:"required"`
	TargetOfferingID uuid.UUID           `json:"target_offering_id" validate:"required"`
	Kind             models.FeedbackKind `json:"feedback_kind" validate:"required,feedback_kind"`
}

type SimilarityResult struct {
	SourceOfferingID uuid.UUID            `json:"source_offering_id"`
	GeneratedAt      time.Time            `json:"generated_at"`
	Items            []models.SimilarItem `json:"items"`
	AlreadyPaid      bool                 `json:"already_paid"`
	Cached           bool                 `json:"cached"`
	UnitPrice        string               `json:"unit_price"`
}

func NewSimilarityService(db *gorm.DB, config *config.Config, catalog *CatalogService, payments *PaymentService, client inference.Client) *SimilarityService {
	return &SimilarityService{
		db:        db,
		store:     transactionStore{db: db},
		config:    config,
		catalog:   catalog,
		payments:  payments,
		inference: client,
	}
}

// Generate returns similar offerings for an unlocked source. A fresh or paid
// entry is returned as stored; otherwise one inference call builds a new one.
func (s *SimilarityService) Generate(ctx context.Context, transactionID, sourceID uuid.UUID) (*SimilarityResult, error) {
	t, err := s.store.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !t.IsUnlocked(sourceID) {
		return nil, invalidSelection("offering %s is not unlocked on this transaction", sourceID)
	}

	if idx := t.SimilarUnlockFor(sourceID); idx >= 0 && cacheable(t.SimilarUnlocks[idx], time.Now()) {
		return s.result(t.SimilarUnlocks[idx], true), nil
	}

	source, err := s.catalog.GetOffering(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	excluded, err := s.excludedTargets(ctx, transactionID, sourceID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	pool := candidatePool(t, sourceID, snapshot.Offerings, excluded)
	if len(pool) > similarityMaxCandidates {
		pool = pool[:similarityMaxCandidates]
	}

	var items []models.SimilarItem
	if len(pool) > 0 {
		items, err = s.rank(ctx, source, pool)
		if err != nil {
			return nil, err
		}
	} else {
		items = []models.SimilarItem{}
	}

	entry := models.SimilarUnlock{
		SourceOfferingID: sourceID,
		GeneratedAt:      time.Now(),
		Items:            items,
	}

	t, _, err = s.store.update(context.WithoutCancel(ctx), transactionID, func(t *models.Transaction) (bool, error) {
		idx := t.SimilarUnlockFor(sourceID)
		if idx >= 0 {
			existing := t.SimilarUnlocks[idx]
			// A concurrent generation or a payment got there first.
			if cacheable(existing, time.Now()) {
				entry = existing
				return false, nil
			}
			t.SimilarUnlocks[idx] = entry
			return true, nil
		}
		t.SimilarUnlocks = append(t.SimilarUnlocks, entry)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id":     transactionID,
		"source_offering_id": sourceID,
		"candidates":         len(pool),
		"items":              len(entry.Items),
	}).Info("Similar offerings generated")

	return s.result(entry, false), nil
}

// CreateCheckout charges for a subset of a generated similarity entry.
func (s *SimilarityService) CreateCheckout(ctx context.Context, transactionID uuid.UUID, req *SimilarityCheckoutRequest) (*CheckoutResult, error) {
	return s.payments.CreateCheckout(ctx, transactionID, models.PaymentPurposeSimilarity, CheckoutOptions{
		OfferingIDs:      req.OfferingIDs,
		SourceOfferingID: req.SourceOfferingID,
		PayerEmail:       req.PayerEmail,
	})
}

// RecordFeedback stores feedback on a similar item. Excluding kinds only
// affect future generation for the same transaction and source.
func (s *SimilarityService) RecordFeedback(ctx context.Context, transactionID, sourceID, targetID uuid.UUID, kind models.FeedbackKind) (*models.SimilarityFeedback, error) {
	if !kind.Valid() {
		return nil, invalidSelection("unknown feedback kind %q", kind)
	}
	if sourceID == targetID {
		return nil, invalidSelection("an offering cannot be feedback on itself")
	}
	if _, err := s.store.load(ctx, transactionID); err != nil {
		return nil, err
	}

	feedback := &models.SimilarityFeedback{
		TransactionID:    transactionID,
		SourceOfferingID: sourceID,
		TargetOfferingID: targetID,
		Kind:             kind,
	}
	if err := s.db.WithContext(ctx).Create(feedback).Error; err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id":     transactionID,
		"source_offering_id": sourceID,
		"target_offering_id": targetID,
		"kind":               kind,
	}).Info("Similarity feedback recorded")

	return feedback, nil
}

func (s *SimilarityService) excludedTargets(ctx context.Context, transactionID, sourceID uuid.UUID) (map[uuid.UUID]bool, error) {
	var targets []uuid.UUID
	kinds := []models.FeedbackKind{models.FeedbackAlreadyKnown, models.FeedbackIrrelevant}
	if err := s.db.WithContext(ctx).Model(&models.SimilarityFeedback{}).
		Where("transaction_id = ? AND source_offering_id = ? AND kind IN ?", transactionID, sourceID, kinds).
		Pluck("target_offering_id", &targets).Error; err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	excluded := make(map[uuid.UUID]bool, len(targets))
	for _, id := range targets {
		excluded[id] = true
	}
	return excluded, nil
}

func (s *SimilarityService) rank(ctx context.Context, source *models.Offering, pool []models.Offering) ([]models.SimilarItem, error) {
	prompt, err := similarityPrompt(source, pool)
	if err != nil {
		return nil, err
	}

	policy := utils.RetryPolicy{
		Name:        "similarity",
		MaxAttempts: 2,
		Backoff:     utils.ExponentialBackoff(s.config.Batch.InitialBackoff, s.config.Batch.MaxBackoff, s.config.Batch.InitialBackoff, nil),
		Retryable:   func(err error) bool { return inference.IsRetryable(err) && !inference.IsRateLimited(err) },
	}
	ranking, err := utils.Retry(ctx, policy, func(ctx context.Context) (*inference.SimilarityRanking, error) {
		raw, err := s.inference.Invoke(ctx, inference.Request{
			Operation:  inference.OperationSimilarity,
			System:     similaritySystemPrompt,
			Prompt:     prompt,
			SchemaName: "similar_offerings",
			Schema:     inference.SimilaritySchema(),
		})
		if err != nil {
			return nil, err
		}
		return inference.Decode[inference.SimilarityRanking](raw)
	})
	if err != nil {
		return nil, classifyUpstream("similarity", err)
	}

	return enrichSimilar(ranking.Items, pool), nil
}

func (s *SimilarityService) result(entry models.SimilarUnlock, cached bool) *SimilarityResult {
	redacted := redactSimilar(entry)
	return &SimilarityResult{
		SourceOfferingID: entry.SourceOfferingID,
		GeneratedAt:      entry.GeneratedAt,
		Items:            redacted.Items,
		AlreadyPaid:      entry.Paid,
		Cached:           cached,
		UnitPrice:        s.config.Payment.SimilarityUnitPrice.StringFixed(2),
	}
}

// cacheable reports whether an entry is served without regenerating. A paid
// entry never expires because its items were bought.
func cacheable(entry models.SimilarUnlock, now time.Time) bool {
	if entry.Paid {
		return true
	}
	return len(entry.Items) > 0 && now.Sub(entry.GeneratedAt) < similarityCacheTTL
}

// candidatePool is the active catalog minus the source, offerings unlocked
// on the transaction, items already surfaced for other sources and targets
// excluded by feedback.
func candidatePool(t *models.Transaction, sourceID uuid.UUID, active []models.Offering, excluded map[uuid.UUID]bool) []models.Offering {
	skip := t.UnlockedIDs()
	skip[sourceID] = true
	for id := range excluded {
		skip[id] = true
	}
	for _, entry := range t.SimilarUnlocks {
		if entry.SourceOfferingID == sourceID {
			continue
		}
		for _, item := range entry.Items {
			skip[item.OfferingID] = true
		}
	}

	pool := make([]models.Offering, 0, len(active))
	for _, o := range active {
		if !skip[o.ID] {
			pool = append(pool, o)
		}
	}
	return pool
}

// enrichSimilar drops results below the score floor or outside the pool,
// trims reasons and attaches catalog data. Contacts stay empty until paid.
func enrichSimilar(candidates []inference.SimilarCandidate, pool []models.Offering) []models.SimilarItem {
	byID := make(map[uuid.UUID]models.Offering, len(pool))
	for _, o := range pool {
		byID[o.ID] = o
	}

	seen := make(map[uuid.UUID]bool, len(candidates))
	items := make([]models.SimilarItem, 0, len(candidates))
	for _, c := range candidates {
		id, err := uuid.Parse(c.OfferingID)
		if err != nil || seen[id] || c.SimilarityScore < similarityMinScore {
			continue
		}
		o, ok := byID[id]
		if !ok {
			continue
		}
		seen[id] = true

		reasons := make([]string, 0, similarityMaxReasons)
		for _, r := range c.MatchReasons {
			if r = strings.TrimSpace(r); r != "" && len(reasons) < similarityMaxReasons {
				reasons = append(reasons, r)
			}
		}

		items = append(items, models.SimilarItem{
			OfferingID:      o.ID,
			Name:            o.Name,
			Description:     o.Description,
			Category:        o.Category,
			Vertical:        o.Vertical,
			SimilarityScore: c.SimilarityScore,
			Rationale:       strings.TrimSpace(c.Rationale),
			MatchReasons:    reasons,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].SimilarityScore > items[j].SimilarityScore })
	if len(items) > similarityMaxResults {
		items = items[:similarityMaxResults]
	}
	if len(items) < similarityMinResults {
		logrus.WithField("items", len(items)).Debug("Fewer similar offerings than requested passed the score floor")
	}
	return items
}

func similarityPrompt(source *models.Offering, pool []models.Offering) (string, error) {
	sourceJSON, err := json.Marshal(toPromptOffering(*source))
	if err != nil {
		return "", fmt.Errorf("failed to encode source: %w", err)
	}
	list := make([]promptOffering, len(pool))
	for i, o := range pool {
		list[i] = toPromptOffering(o)
	}
	poolJSON, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode candidates: %w", err)
	}
	return fmt.Sprintf("Source offering:\n%s\n\nCandidate offerings:\n%s\n", sourceJSON, poolJSON), nil
}
