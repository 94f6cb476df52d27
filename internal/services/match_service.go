// internal/services/match_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/inference"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

const matchSystemPrompt = `You match a client's business problem to vendor offerings from a catalog.
Only use offerings from the candidate list and copy their ids exactly.
Score each match from 0 to 100 for how well it solves the stated problem.
Write the personalized summary for the client. Never include emails, phone numbers, websites or prices.`

// MatchService creates transactions with their ranked suggestions.
type MatchService struct {
	db        *gorm.DB
	store     transactionStore
	config    *config.Config
	catalog   *CatalogService
	inference inference.Client
}

type CreateTransactionRequest struct {
	SessionID        string                 `json:"session_id" validate:"required,max=100"`
	ProblemStatement string                 `json:"problem_statement" validate:"required,min=10,max=5000"`
	ClientEmail      string                 `json:"client_email,omitempty" validate:"omitempty,email"`
	ClientProfile    map[string]interface{} `json:"client_profile,omitempty"`
}

func NewMatchService(db *gorm.DB, config *config.Config, catalog *CatalogService, client inference.Client) *MatchService {
	return &MatchService{
		db:        db,
		store:     transactionStore{db: db},
		config:    config,
		catalog:   catalog,
		inference: client,
	}
}

// CreateTransaction is idempotent by session id: a repeated call returns the
// stored transaction and created=false.
func (s *MatchService) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*models.Transaction, bool, error) {
	existing, err := s.store.loadBySession(ctx, req.SessionID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	suggested, err := s.rank(ctx, req.ProblemStatement, req.ClientProfile)
	if err != nil {
		return nil, false, err
	}

	id := uuid.New()
	t := &models.Transaction{
		BaseModel:         models.BaseModel{ID: id},
		SessionID:         req.SessionID,
		ProblemStatement:  req.ProblemStatement,
		ClientEmail:       req.ClientEmail,
		ClientProfile:     models.JSONB(req.ClientProfile),
		Suggested:         suggested,
		UnitPrice:         s.config.Payment.UnitPrice,
		TotalAmount:       models.ComputeTotal(0, s.config.Payment.UnitPrice),
		Currency:          s.config.Payment.Currency,
		PaymentStatus:     models.PaymentStatusPending,
		ExternalReference: id.String(),
	}

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another request created the same session first.
			existing, loadErr := s.store.loadBySession(ctx, req.SessionID)
			if loadErr != nil {
				return nil, false, loadErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"session_id":     t.SessionID,
		"suggested":      len(t.Suggested),
	}).Info("Transaction created")

	return t, true, nil
}

// Rematch ranks the catalog again. Only unpaid transactions can be rematched
// and the selection is cleared because it refers to the old suggestions.
func (s *MatchService) Rematch(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	t, err := s.store.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.IsPaid() {
		return nil, &ServiceError{Kind: ErrAlreadyPaid, Message: "paid transactions cannot be rematched"}
	}

	suggested, err := s.rank(ctx, t.ProblemStatement, t.ClientProfile)
	if err != nil {
		return nil, err
	}

	t, _, err = s.store.update(ctx, transactionID, func(t *models.Transaction) (bool, error) {
		if t.IsPaid() {
			return false, &ServiceError{Kind: ErrAlreadyPaid, Message: "paid transactions cannot be rematched"}
		}
		t.Suggested = suggested
		t.SelectedIDs = nil
		t.TotalAmount = models.ComputeTotal(0, t.UnitPrice)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *MatchService) rank(ctx context.Context, problem string, profile map[string]interface{}) ([]models.SuggestedMatch, error) {
	snapshot, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	candidates := snapshot.Offerings
	if max := s.config.Matching.MaxCandidates; max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}
	if len(candidates) == 0 {
		return []models.SuggestedMatch{}, nil
	}

	prompt, err := matchPrompt(problem, profile, candidates)
	if err != nil {
		return nil, err
	}

	policy := utils.RetryPolicy{
		Name:        "match",
		MaxAttempts: 2,
		Backoff:     utils.ExponentialBackoff(s.config.Batch.InitialBackoff, s.config.Batch.MaxBackoff, s.config.Batch.InitialBackoff, nil),
		Retryable:   func(err error) bool { return inference.IsRetryable(err) && !inference.IsRateLimited(err) },
	}
	ranking, err := utils.Retry(ctx, policy, func(ctx context.Context) (*inference.MatchRanking, error) {
		raw, err := s.inference.Invoke(ctx, inference.Request{
			Operation:  inference.OperationMatch,
			System:     matchSystemPrompt,
			Prompt:     prompt,
			SchemaName: "match_ranking",
			Schema:     inference.MatchSchema(),
		})
		if err != nil {
			return nil, err
		}
		return inference.Decode[inference.MatchRanking](raw)
	})
	if err != nil {
		return nil, classifyUpstream("matching", err)
	}

	pool := make(map[uuid.UUID]bool, len(candidates))
	for _, c := range candidates {
		pool[c.ID] = true
	}
	return filterMatches(ranking.Matches, pool, s.config.Matching.MinMatchScore, s.config.Matching.MaxSuggestions), nil
}

// filterMatches keeps valid, unique candidate ids at or above minScore,
// ordered by score.
func filterMatches(matches []inference.RankedMatch, pool map[uuid.UUID]bool, minScore, limit int) []models.SuggestedMatch {
	seen := make(map[uuid.UUID]bool, len(matches))
	out := make([]models.SuggestedMatch, 0, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(m.OfferingID)
		if err != nil || !pool[id] || seen[id] || m.MatchScore < minScore {
			continue
		}
		seen[id] = true
		out = append(out, models.SuggestedMatch{
			OfferingID:          id,
			MatchScore:          m.MatchScore,
			PersonalizedSummary: strings.TrimSpace(m.PersonalizedSummary),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].MatchScore > out[j].MatchScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type promptOffering struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Vertical      string    `json:"vertical"`
	BusinessModel string    `json:"business_model"`
	City          string    `json:"city,omitempty"`
	QualityScore  float64   `json:"quality_score,omitempty"`
}

func toPromptOffering(o models.Offering) promptOffering {
	return promptOffering{
		ID:            o.ID,
		Name:          o.Name,
		Description:   utils.Truncate(o.Description, 600),
		Category:      o.Category,
		Vertical:      o.Vertical,
		BusinessModel: o.BusinessModel,
		City:          o.City,
		QualityScore:  o.QualityScore,
	}
}

func matchPrompt(problem string, profile map[string]interface{}, candidates []models.Offering) (string, error) {
	list := make([]promptOffering, len(candidates))
	for i, c := range candidates {
		list[i] = toPromptOffering(c)
	}
	candidatesJSON, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode candidates: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Client problem:\n%s\n\n", problem)
	if len(profile) > 0 {
		profileJSON, err := json.Marshal(profile)
		if err != nil {
			return "", fmt.Errorf("failed to encode client profile: %w", err)
		}
		fmt.Fprintf(&b, "Client profile:\n%s\n\n", profileJSON)
	}
	fmt.Fprintf(&b, "Candidate offerings:\n%s\n", candidatesJSON)
	return b.String(), nil
}
