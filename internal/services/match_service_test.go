// internal/services/match_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/vendormatch-backend/internal/inference"
	"github.com/javajoker/vendormatch-backend/internal/models"
)

type MatchTestSuite struct {
	suite.Suite
	env       *testEnv
	ctx       context.Context
	offerings []models.Offering
}

func (suite *MatchTestSuite) SetupTest() {
	suite.env = newTestEnv(suite.T())
	suite.ctx = context.Background()
	suite.offerings = []models.Offering{
		suite.env.createOffering(suite.T(), "Ledger Pro", "finance", "retail"),
		suite.env.createOffering(suite.T(), "Payroll Hub", "hr", "retail"),
		suite.env.createOffering(suite.T(), "Shop Ads", "marketing", "ecommerce"),
	}
}

func (suite *MatchTestSuite) request(session string) *CreateTransactionRequest {
	return &CreateTransactionRequest{
		SessionID:        session,
		ProblemStatement: "Our store needs bookkeeping and payroll software",
		ClientEmail:      "owner@example.com",
		ClientProfile:    map[string]interface{}{"company_size": "10-50"},
	}
}

func (suite *MatchTestSuite) replyWith(matches ...inference.RankedMatch) {
	suite.env.inference.reply(inference.OperationMatch, inference.MatchRanking{Matches: matches})
}

func (suite *MatchTestSuite) TestCreateTransactionFiltersRanking() {
	o := suite.offerings
	suite.replyWith(
		inference.RankedMatch{OfferingID: o[1].ID.String(), MatchScore: 70, PersonalizedSummary: "payroll"},
		inference.RankedMatch{OfferingID: o[0].ID.String(), MatchScore: 92, PersonalizedSummary: " bookkeeping "},
		inference.RankedMatch{OfferingID: o[2].ID.String(), MatchScore: 20, PersonalizedSummary: "ads"},
		inference.RankedMatch{OfferingID: uuid.NewString(), MatchScore: 99, PersonalizedSummary: "invented"},
		inference.RankedMatch{OfferingID: o[0].ID.String(), MatchScore: 80, PersonalizedSummary: "again"},
	)

	t, created, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	require.NoError(suite.T(), err)
	assert.True(suite.T(), created)

	require.Len(suite.T(), t.Suggested, 2)
	assert.Equal(suite.T(), o[0].ID, t.Suggested[0].OfferingID)
	assert.Equal(suite.T(), "bookkeeping", t.Suggested[0].PersonalizedSummary)
	assert.Equal(suite.T(), o[1].ID, t.Suggested[1].OfferingID)

	assert.Equal(suite.T(), models.PaymentStatusPending, t.PaymentStatus)
	assert.Equal(suite.T(), t.ID.String(), t.ExternalReference)
	assert.True(suite.T(), decimal.NewFromInt(5).Equal(t.UnitPrice))
	assert.True(suite.T(), t.TotalAmount.IsZero())
	assert.Equal(suite.T(), "usd", t.Currency)
}

func (suite *MatchTestSuite) TestCreateTransactionIsIdempotentBySession() {
	suite.replyWith(inference.RankedMatch{OfferingID: suite.offerings[0].ID.String(), MatchScore: 90, PersonalizedSummary: "fit"})

	first, created, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	require.NoError(suite.T(), err)
	require.True(suite.T(), created)

	second, created, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	require.NoError(suite.T(), err)
	assert.False(suite.T(), created)
	assert.Equal(suite.T(), first.ID, second.ID)
	assert.Equal(suite.T(), 1, suite.env.inference.count(inference.OperationMatch))

	var count int64
	suite.env.db.Model(&models.Transaction{}).Count(&count)
	assert.Equal(suite.T(), int64(1), count)
}

func (suite *MatchTestSuite) TestInactiveOfferingsAreNotCandidates() {
	pending := models.Offering{Name: "Hidden", Category: "finance", Vertical: "retail", BusinessModel: "saas"}
	require.NoError(suite.T(), suite.env.db.Create(&pending).Error)

	suite.replyWith(inference.RankedMatch{OfferingID: pending.ID.String(), MatchScore: 99, PersonalizedSummary: "hidden"})

	t, _, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), t.Suggested)
}

func (suite *MatchTestSuite) TestEmptyCatalogSkipsInference() {
	require.NoError(suite.T(), suite.env.db.Where("1 = 1").Delete(&models.Offering{}).Error)

	t, created, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	require.NoError(suite.T(), err)
	assert.True(suite.T(), created)
	assert.Empty(suite.T(), t.Suggested)
	assert.Zero(suite.T(), suite.env.inference.count(inference.OperationMatch))
}

func (suite *MatchTestSuite) TestRateLimitedRankingFailsFast() {
	suite.env.inference.fail(inference.OperationMatch, errors.New("429 Too Many Requests"))

	_, _, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	require.ErrorIs(suite.T(), err, ErrRateLimited)

	var svcErr *ServiceError
	require.True(suite.T(), errors.As(err, &svcErr))
	assert.Equal(suite.T(), 30*time.Second, svcErr.RetryAfter)
	assert.Equal(suite.T(), 1, suite.env.inference.count(inference.OperationMatch))

	var count int64
	suite.env.db.Model(&models.Transaction{}).Count(&count)
	assert.Zero(suite.T(), count)
}

func (suite *MatchTestSuite) TestInvalidOutputIsRetriedOnce() {
	suite.env.inference.reply(inference.OperationMatch, map[string]interface{}{
		"matches": []map[string]interface{}{{"offering_id": "not-a-uuid", "match_score": 80}},
	})

	_, _, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	assert.ErrorIs(suite.T(), err, ErrUpstreamUnavailable)
	assert.Equal(suite.T(), 2, suite.env.inference.count(inference.OperationMatch))
}

func (suite *MatchTestSuite) TestRematchClearsSelection() {
	o := suite.offerings
	suite.replyWith(inference.RankedMatch{OfferingID: o[0].ID.String(), MatchScore: 90, PersonalizedSummary: "fit"})
	t, _, err := suite.env.matches.CreateTransaction(suite.ctx, suite.request("session-1"))
	require.NoError(suite.T(), err)

	_, err = suite.env.unlocks.SelectOfferings(suite.ctx, t.ID, idsOf(o[0]))
	require.NoError(suite.T(), err)

	suite.replyWith(inference.RankedMatch{OfferingID: o[1].ID.String(), MatchScore: 88, PersonalizedSummary: "payroll"})
	t, err = suite.env.matches.Rematch(suite.ctx, t.ID)
	require.NoError(suite.T(), err)

	require.Len(suite.T(), t.Suggested, 1)
	assert.Equal(suite.T(), o[1].ID, t.Suggested[0].OfferingID)
	assert.Empty(suite.T(), t.SelectedIDs)
	assert.True(suite.T(), t.TotalAmount.IsZero())
}

func (suite *MatchTestSuite) TestRematchOfPaidTransaction() {
	t := suite.env.createTransaction(suite.T(), "", suite.offerings[0])
	require.NoError(suite.T(), suite.env.db.Model(&models.Transaction{}).
		Where("id = ?", t.ID).
		Update("payment_status", models.PaymentStatusPaid).Error)

	_, err := suite.env.matches.Rematch(suite.ctx, t.ID)
	assert.ErrorIs(suite.T(), err, ErrAlreadyPaid)
	assert.Zero(suite.T(), suite.env.inference.count(inference.OperationMatch))
}

func (suite *MatchTestSuite) TestUnknownTransaction() {
	_, err := suite.env.matches.Rematch(suite.ctx, uuid.New())
	require.ErrorIs(suite.T(), err, ErrNotFound)

	var svcErr *ServiceError
	require.True(suite.T(), errors.As(err, &svcErr))
	assert.Equal(suite.T(), "transaction", svcErr.Resource)
}

func TestMatchTestSuite(t *testing.T) {
	suite.Run(t, new(MatchTestSuite))
}

func TestFilterMatchesLimit(t *testing.T) {
	pool := map[uuid.UUID]bool{}
	var matches []inference.RankedMatch
	for i := 0; i < 5; i++ {
		id := uuid.New()
		pool[id] = true
		matches = append(matches, inference.RankedMatch{OfferingID: id.String(), MatchScore: 60 + i, PersonalizedSummary: "x"})
	}

	out := filterMatches(matches, pool, 50, 3)
	require.Len(t, out, 3)
	assert.Equal(t, 64, out[0].MatchScore)
	assert.Equal(t, 62, out[2].MatchScore)

	assert.Empty(t, filterMatches(matches, pool, 90, 3))
}
