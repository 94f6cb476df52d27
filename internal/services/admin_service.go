// internal/services/admin_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

type AdminService struct {
	db      *gorm.DB
	catalog *CatalogService
}

type AdminDashboardStats struct {
	TotalTransactions   int64                          `json:"total_transactions"`
	TransactionsByState map[models.PaymentStatus]int64 `json:"transactions_by_status"`
	PaidThisMonth       int64                          `json:"paid_this_month"`
	TotalRevenue        decimal.Decimal                `json:"total_revenue"`
	MonthlyRevenue      decimal.Decimal                `json:"monthly_revenue"`
	ActiveOfferings     int64                          `json:"active_offerings"`
	PendingOfferings    int64                          `json:"pending_offerings"`
	FlaggedDuplicates   int64                          `json:"flagged_duplicates"`
	RunningBatchJobs    int64                          `json:"running_batch_jobs"`
	PausedBatchJobs     int64                          `json:"paused_batch_jobs"`
	WebhookEventsToday  int64                          `json:"webhook_events_today"`
	FailedWebhooks      int64                          `json:"failed_webhooks"`
}

type AdminTransactionFilter struct {
	utils.PaginationParams
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

type AdminWebhookFilter struct {
	utils.PaginationParams
	Outcome    string `json:"outcome,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

func NewAdminService(db *gorm.DB, catalog *CatalogService) *AdminService {
	return &AdminService{
		db:      db,
		catalog: catalog,
	}
}

// GetDashboardStats counts what an operator watches: payments, catalog
// backlog, batch jobs and webhook health.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{TransactionsByState: map[models.PaymentStatus]int64{}}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var byStatus []struct {
		PaymentStatus models.PaymentStatus
		Count         int64
	}
	if err := db.Model(&models.Transaction{}).
		Select("payment_status, COUNT(*) AS count").
		Group("payment_status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	for _, row := range byStatus {
		stats.TransactionsByState[row.PaymentStatus] = row.Count
		stats.TotalTransactions += row.Count
	}

	// Revenue is summed in Go to keep decimal precision on both drivers.
	var paid []models.Transaction
	if err := db.Select("total_amount", "paid_at").
		Where("payment_status = ?", models.PaymentStatusPaid).
		Find(&paid).Error; err != nil {
		return nil, fmt.Errorf("failed to load paid transactions: %w", err)
	}
	stats.TotalRevenue = decimal.Zero
	stats.MonthlyRevenue = decimal.Zero
	for _, t := range paid {
		stats.TotalRevenue = stats.TotalRevenue.Add(t.TotalAmount)
		if t.PaidAt != nil && !t.PaidAt.Before(monthStart) {
			stats.MonthlyRevenue = stats.MonthlyRevenue.Add(t.TotalAmount)
			stats.PaidThisMonth++
		}
	}

	counts := []struct {
		target *int64
		query  *gorm.DB
	}{
		{&stats.ActiveOfferings, db.Model(&models.Offering{}).Where("active = ?", true)},
		{&stats.PendingOfferings, db.Model(&models.Offering{}).Where("active = ? AND duplicate_of_id IS NULL", false)},
		{&stats.FlaggedDuplicates, db.Model(&models.Offering{}).Where("duplicate_of_id IS NOT NULL")},
		{&stats.RunningBatchJobs, db.Model(&models.BatchJob{}).Where("status = ?", models.BatchJobStatusRunning)},
		{&stats.PausedBatchJobs, db.Model(&models.BatchJob{}).Where("status = ?", models.BatchJobStatusPaused)},
		{&stats.WebhookEventsToday, db.Model(&models.WebhookEvent{}).Where("created_at >= ?", dayStart)},
		{&stats.FailedWebhooks, db.Model(&models.WebhookEvent{}).Where("outcome IN ?", []string{OutcomeMissingMetadata, OutcomeIntegrityViolation, "gateway_error", "error"})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.target).Error; err != nil {
			return nil, fmt.Errorf("failed to compute dashboard stats: %w", err)
		}
	}

	return stats, nil
}

func (s *AdminService) GetTransactions(ctx context.Context, filter AdminTransactionFilter) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})

	if filter.Status != "" {
		query = query.Where("payment_status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("(session_id LIKE ? OR client_email LIKE ? OR gateway_payment_id LIKE ?)", like, like, like)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "total_amount", "payment_status", "paid_at"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var transactions []models.Transaction
	if err := query.Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	return transactions, total, nil
}

func (s *AdminService) GetWebhookEvents(ctx context.Context, filter AdminWebhookFilter) ([]models.WebhookEvent, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.WebhookEvent{})

	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}
	if filter.ResourceID != "" {
		query = query.Where("resource_id = ?", filter.ResourceID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook events: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "event_type", "outcome"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var events []models.WebhookEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch webhook events: %w", err)
	}
	return events, total, nil
}

func (s *AdminService) GetAuditLogs(ctx context.Context, params utils.PaginationParams, resourceType string) ([]models.AuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if resourceType != "" {
		query = query.Where("resource_type = ?", resourceType)
	}
	if params.Search != "" {
		query = query.Where("actor = ?", params.Search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "action", "status_code"})
	query = utils.ApplyPagination(query, params)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}

// ActivateOffering publishes a pending offering and records who did it.
func (s *AdminService) ActivateOffering(ctx context.Context, offeringID uuid.UUID, actor string) (*models.Offering, error) {
	offering, err := s.catalog.Activate(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	s.createAuditLog(ctx, actor, "ACTIVATE_OFFERING", "offering", &offeringID,
		map[string]interface{}{"active": false},
		map[string]interface{}{"active": true})
	return offering, nil
}

func (s *AdminService) RunDedupPass(ctx context.Context, actor string) (*DedupReport, error) {
	report, err := s.catalog.DedupPass(ctx)
	if err != nil {
		return nil, err
	}
	s.createAuditLog(ctx, actor, "DEDUP_PASS", "offering", nil, nil,
		map[string]interface{}{"scanned": report.Scanned, "duplicates": report.Duplicates})
	return report, nil
}

func (s *AdminService) createAuditLog(ctx context.Context, actor, action, resourceType string, resourceID *uuid.UUID, oldValues, newValues map[string]interface{}) {
	auditLog := &models.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    models.JSONB(oldValues),
		NewValues:    models.JSONB(newValues),
	}

	s.db.WithContext(context.WithoutCancel(ctx)).Create(auditLog)
}
