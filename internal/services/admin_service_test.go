// internal/services/admin_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

type AdminTestSuite struct {
	suite.Suite
	env *testEnv
	ctx context.Context
}

func (suite *AdminTestSuite) SetupTest() {
	suite.env = newTestEnv(suite.T())
	suite.ctx = context.Background()
}

func (suite *AdminTestSuite) markPaid(t *models.Transaction, total int64) {
	require.NoError(suite.T(), suite.env.db.Model(&models.Transaction{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
			"total_amount":   decimal.NewFromInt(total),
			"paid_at":        time.Now(),
		}).Error)
}

func (suite *AdminTestSuite) TestDashboardStats() {
	o := suite.env.createOffering(suite.T(), "Ledger", "finance", "retail")
	paid := suite.env.createTransaction(suite.T(), "a@example.com", o)
	suite.markPaid(paid, 15)
	suite.env.createTransaction(suite.T(), "b@example.com", o)

	draft := models.Offering{Name: "Draft", Category: "hr", Vertical: "retail", BusinessModel: "saas"}
	require.NoError(suite.T(), suite.env.db.Create(&draft).Error)

	stats, err := suite.env.admin.GetDashboardStats(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), stats.TotalTransactions)
	assert.Equal(suite.T(), int64(1), stats.TransactionsByState[models.PaymentStatusPaid])
	assert.Equal(suite.T(), int64(1), stats.TransactionsByState[models.PaymentStatusPending])
	assert.True(suite.T(), decimal.NewFromInt(15).Equal(stats.TotalRevenue), stats.TotalRevenue.String())
	assert.True(suite.T(), decimal.NewFromInt(15).Equal(stats.MonthlyRevenue))
	assert.Equal(suite.T(), int64(1), stats.PaidThisMonth)
	assert.Equal(suite.T(), int64(1), stats.ActiveOfferings)
	assert.Equal(suite.T(), int64(1), stats.PendingOfferings)
}

func (suite *AdminTestSuite) TestGetTransactionsFilters() {
	o := suite.env.createOffering(suite.T(), "Ledger", "finance", "retail")
	paid := suite.env.createTransaction(suite.T(), "paid@example.com", o)
	suite.markPaid(paid, 5)
	suite.env.createTransaction(suite.T(), "open@example.com", o)

	params := utils.PaginationParams{Page: 1, Limit: 10, Sort: "created_at", Order: "desc", Status: string(models.PaymentStatusPaid)}
	transactions, total, err := suite.env.admin.GetTransactions(suite.ctx, AdminTransactionFilter{PaginationParams: params})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	require.Len(suite.T(), transactions, 1)
	assert.Equal(suite.T(), paid.ID, transactions[0].ID)

	params = utils.PaginationParams{Page: 1, Limit: 10, Search: "open@"}
	transactions, total, err = suite.env.admin.GetTransactions(suite.ctx, AdminTransactionFilter{PaginationParams: params})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), "open@example.com", transactions[0].ClientEmail)
}

func (suite *AdminTestSuite) TestActivateOfferingIsAudited() {
	draft := models.Offering{Name: "Draft", Category: "hr", Vertical: "retail", BusinessModel: "saas"}
	require.NoError(suite.T(), suite.env.db.Create(&draft).Error)

	offering, err := suite.env.admin.ActivateOffering(suite.ctx, draft.ID, "ops@example.com")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), offering.Active)

	report, err := suite.env.admin.RunDedupPass(suite.ctx, "ops@example.com")
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), report.Duplicates)

	logs, total, err := suite.env.admin.GetAuditLogs(suite.ctx, utils.PaginationParams{Page: 1, Limit: 10, Sort: "created_at", Order: "asc"}, "offering")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), total)
	require.Len(suite.T(), logs, 2)
	assert.Equal(suite.T(), "ACTIVATE_OFFERING", logs[0].Action)
	assert.Equal(suite.T(), "ops@example.com", logs[0].Actor)
	assert.Equal(suite.T(), draft.ID, *logs[0].ResourceID)
	assert.Equal(suite.T(), "DEDUP_PASS", logs[1].Action)
}

func TestAdminTestSuite(t *testing.T) {
	suite.Run(t, new(AdminTestSuite))
}
