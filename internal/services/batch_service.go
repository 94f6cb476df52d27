// internal/services/batch_service.go
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/database"
	"github.com/javajoker/vendormatch-backend/internal/inference"
	"github.com/javajoker/vendormatch-backend/internal/metrics"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

// Advance outcomes.
const (
	AdvanceProcessed = "processed"
	AdvanceDuplicate = "duplicate"
	AdvanceFailed    = "failed"
	AdvancePaused    = "paused"
	AdvanceCompleted = "completed"
	AdvanceBusy      = "busy"
)

// batchCSVColumns is the fixed upload layout.
var batchCSVColumns = []string{"name", "site", "email", "phone", "city", "notes"}

const extractionSystemPrompt = `You turn raw vendor data into one catalog offering.
Use only the provided taxonomy values for category, vertical and business_model.
Never guess: any optional field you cannot find in the input must be null.
Do not invent emails, phone numbers, whatsapp numbers, cities or prices.`

type BatchService struct {
	db        *gorm.DB
	config    *config.Config
	catalog   *CatalogService
	storage   *StorageService
	inference inference.Client
}

type CreateBatchJobRequest struct {
	Name      string                 `json:"name" validate:"max=255"`
	SourceURL string                 `json:"source_url,omitempty" validate:"omitempty,url"`
	Rows      []models.BatchRowInput `json:"rows" validate:"required,min=1,dive"`
}

type AdvanceOptions struct {
	Pause bool
}

type AdvanceResult struct {
	Outcome    string           `json:"outcome"`
	Job        *models.BatchJob `json:"job"`
	RowID      *uuid.UUID       `json:"row_id,omitempty"`
	OfferingID *uuid.UUID       `json:"offering_id,omitempty"`
	RetryAfter time.Duration    `json:"-"`
	Error      string           `json:"error,omitempty"`
}

func NewBatchService(db *gorm.DB, config *config.Config, catalog *CatalogService, storage *StorageService, client inference.Client) *BatchService {
	return &BatchService{
		db:        db,
		config:    config,
		catalog:   catalog,
		storage:   storage,
		inference: client,
	}
}

func (s *BatchService) CreateJob(ctx context.Context, req *CreateBatchJobRequest) (*models.BatchJob, error) {
	if len(req.Rows) == 0 {
		return nil, invalidSelection("a batch job needs at least one row")
	}

	job := &models.BatchJob{
		Name:       req.Name,
		SourceURL:  req.SourceURL,
		TotalCount: len(req.Rows),
		Status:     models.BatchJobStatusAwaiting,
	}

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		rows := make([]models.BatchRow, len(req.Rows))
		for i, input := range req.Rows {
			rows[i] = models.BatchRow{
				JobID:    job.ID,
				Position: i,
				Input:    datatypes.NewJSONType(input),
				Status:   models.BatchRowStatusPending,
			}
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id": job.ID,
		"rows":   job.TotalCount,
	}).Info("Batch job created")

	return job, nil
}

// CreateJobFromCSV archives the raw upload and creates a job from its rows.
// The header must match the fixed column layout.
func (s *BatchService) CreateJobFromCSV(ctx context.Context, name, filename string, data []byte) (*models.BatchJob, error) {
	rows, err := ParseBatchCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req := &CreateBatchJobRequest{Name: name, Rows: rows}
	if req.Name == "" {
		req.Name = filename
	}

	archived, err := s.storage.Archive(ctx, filename, data, "text/csv", BatchUploadOptions)
	if err != nil {
		logrus.WithError(err).WithField("filename", filename).Warn("Failed to archive batch upload")
	} else {
		req.SourceURL = archived.URL
	}

	return s.CreateJob(ctx, req)
}

// ParseBatchCSV reads the fixed name,site,email,phone,city,notes layout.
func ParseBatchCSV(r io.Reader) ([]models.BatchRowInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = len(batchCSVColumns)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalidSelection("the uploaded file is empty")
		}
		return nil, invalidSelection("invalid csv header: %v", err)
	}
	for i, column := range batchCSVColumns {
		if strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))) != column {
			return nil, invalidSelection("csv columns must be %s", strings.Join(batchCSVColumns, ","))
		}
	}

	var rows []models.BatchRowInput
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalidSelection("invalid csv row: %v", err)
		}
		row := models.BatchRowInput{
			Name:  strings.TrimSpace(record[0]),
			Site:  strings.TrimSpace(record[1]),
			Email: strings.TrimSpace(record[2]),
			Phone: strings.TrimSpace(record[3]),
			City:  strings.TrimSpace(record[4]),
			Notes: strings.TrimSpace(record[5]),
		}
		if row.Name == "" && row.Site == "" {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, invalidSelection("the uploaded file has no rows")
	}
	return rows, nil
}

func (s *BatchService) GetJob(ctx context.Context, jobID uuid.UUID, withRows bool) (*models.BatchJob, error) {
	query := s.db.WithContext(ctx)
	if withRows {
		query = query.Preload("Rows", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		})
	}

	var job models.BatchJob
	if err := query.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("batch job")
		}
		return nil, fmt.Errorf("failed to load batch job: %w", err)
	}
	return &job, nil
}

func (s *BatchService) ListJobs(ctx context.Context, params utils.PaginationParams) ([]models.BatchJob, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.BatchJob{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Search != "" {
		query = query.Where("name LIKE ?", "%"+params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count batch jobs: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "name", "status", "processed_count"})
	query = utils.ApplyPagination(query, params)

	var jobs []models.BatchJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch batch jobs: %w", err)
	}
	return jobs, total, nil
}

// Advance processes exactly one pending row of the job.
func (s *BatchService) Advance(ctx context.Context, jobID uuid.UUID, opts AdvanceOptions) (*AdvanceResult, error) {
	job, err := s.GetJob(ctx, jobID, false)
	if err != nil {
		return nil, err
	}

	if job.Status == models.BatchJobStatusCompleted {
		return &AdvanceResult{Outcome: AdvanceCompleted, Job: job}, nil
	}
	if opts.Pause {
		return s.pause(ctx, job, models.PauseReasonManual, "")
	}
	if job.Status == models.BatchJobStatusPaused && job.PauseReason != models.PauseReasonRateLimited {
		return &AdvanceResult{Outcome: AdvancePaused, Job: job}, nil
	}

	row, err := s.nextPendingRow(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return s.finishIfDone(ctx, job)
	}

	claimed, err := s.claimRow(ctx, job, row)
	if err != nil {
		return nil, err
	}
	if !claimed {
		job, err = s.GetJob(ctx, jobID, false)
		if err != nil {
			return nil, err
		}
		return &AdvanceResult{Outcome: AdvanceBusy, Job: job}, nil
	}

	// The row is marked processing; from here the call runs to its write.
	ctx = context.WithoutCancel(ctx)
	return s.processRow(ctx, jobID, row)
}

// Resume clears a pause so the next Advance continues.
func (s *BatchService) Resume(ctx context.Context, jobID uuid.UUID) (*models.BatchJob, error) {
	job, err := s.GetJob(ctx, jobID, false)
	if err != nil {
		return nil, err
	}
	if job.Status != models.BatchJobStatusPaused {
		return job, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.BatchJob{}).
		Where("id = ? AND status = ?", jobID, models.BatchJobStatusPaused).
		Updates(map[string]interface{}{
			"status":       models.BatchJobStatusRunning,
			"pause_reason": models.PauseReasonNone,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to resume batch job: %w", err)
	}

	logrus.WithField("job_id", jobID).Info("Batch job resumed")
	return s.GetJob(ctx, jobID, false)
}

// StuckRows lists rows left processing for longer than olderThan. They are
// not recovered automatically.
func (s *BatchService) StuckRows(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) ([]models.BatchRow, error) {
	var rows []models.BatchRow
	if err := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ? AND started_at < ?", jobID, models.BatchRowStatusProcessing, time.Now().Add(-olderThan)).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load stuck rows: %w", err)
	}
	return rows, nil
}

// RequeueRow returns a stuck processing row to pending.
func (s *BatchService) RequeueRow(ctx context.Context, jobID, rowID uuid.UUID) (*models.BatchRow, error) {
	var row models.BatchRow
	if err := s.db.WithContext(ctx).First(&row, "id = ? AND job_id = ?", rowID, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("batch row")
		}
		return nil, fmt.Errorf("failed to load batch row: %w", err)
	}

	if _, err := row.Status.Transition(models.BatchRowStatusPending); err != nil {
		return nil, invalidSelection("%v", err)
	}

	result := s.db.WithContext(ctx).Model(&models.BatchRow{}).
		Where("id = ? AND status = ?", rowID, models.BatchRowStatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.BatchRowStatusPending,
			"started_at": nil,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to requeue batch row: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, invalidSelection("batch row %s is no longer processing", rowID)
	}

	logrus.WithFields(logrus.Fields{
		"job_id": jobID,
		"row_id": rowID,
	}).Warn("Batch row requeued")

	row.Status = models.BatchRowStatusPending
	row.StartedAt = nil
	return &row, nil
}

func (s *BatchService) nextPendingRow(ctx context.Context, jobID uuid.UUID) (*models.BatchRow, error) {
	var row models.BatchRow
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, models.BatchRowStatusPending).
		Order("position ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load next row: %w", err)
	}
	return &row, nil
}

// claimRow moves the row to processing only if it is still pending, and
// marks the job running.
func (s *BatchService) claimRow(ctx context.Context, job *models.BatchJob, row *models.BatchRow) (bool, error) {
	next, err := row.Status.Transition(models.BatchRowStatusProcessing)
	if err != nil {
		return false, nil
	}

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.BatchRow{}).
		Where("id = ? AND status = ?", row.ID, models.BatchRowStatusPending).
		Updates(map[string]interface{}{
			"status":     next,
			"started_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim batch row: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	row.Status = next
	row.StartedAt = &now

	updates := map[string]interface{}{
		"status":       models.BatchJobStatusRunning,
		"pause_reason": models.PauseReasonNone,
	}
	if job.StartedAt == nil {
		updates["started_at"] = now
	}
	if err := s.db.WithContext(ctx).Model(&models.BatchJob{}).
		Where("id = ? AND status <> ?", job.ID, models.BatchJobStatusCompleted).
		Updates(updates).Error; err != nil {
		return false, fmt.Errorf("failed to mark batch job running: %w", err)
	}
	return true, nil
}

func (s *BatchService) processRow(ctx context.Context, jobID uuid.UUID, row *models.BatchRow) (*AdvanceResult, error) {
	input := row.Input.Data()
	logger := logrus.WithFields(logrus.Fields{
		"job_id":   jobID,
		"row_id":   row.ID,
		"position": row.Position,
	})

	// A repeated advance of a row that already created its offering reuses it.
	if created, err := s.catalog.FindBySourceRow(ctx, row.ID); err != nil {
		return nil, err
	} else if created != nil {
		return s.completeRow(ctx, jobID, row, models.BatchRowStatusSuccess, &created.ID, false, "")
	}

	siteKey := models.NormalizeSiteKey(input.Site)
	existing, err := s.catalog.FindActiveBySiteKey(ctx, siteKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.WithField("offering_id", existing.ID).Info("Batch row duplicates an active offering")
		return s.completeRow(ctx, jobID, row, models.BatchRowStatusSuccess, &existing.ID, true, "")
	}

	extracted, err := s.extract(ctx, input)
	if err != nil {
		if inference.IsRateLimited(err) {
			logger.WithError(err).Warn("Batch row rate limited, pausing job")
			return s.revertAndPause(ctx, jobID, row, err)
		}
		logger.WithError(err).Error("Batch row failed")
		return s.completeRow(ctx, jobID, row, models.BatchRowStatusError, nil, false, err.Error())
	}

	offering := buildOffering(extracted, input, siteKey, row.ID)
	if err := s.db.WithContext(ctx).Create(offering).Error; err != nil {
		return nil, fmt.Errorf("failed to create offering: %w", err)
	}
	logger.WithField("offering_id", offering.ID).Info("Batch row enriched")

	return s.completeRow(ctx, jobID, row, models.BatchRowStatusSuccess, &offering.ID, false, "")
}

func (s *BatchService) extract(ctx context.Context, input models.BatchRowInput) (*inference.ExtractedOffering, error) {
	prompt := extractionPrompt(input)
	policy := utils.RetryPolicy{
		Name:        "batch_extract",
		MaxAttempts: s.config.Batch.MaxAttempts,
		Backoff: utils.ExponentialBackoff(
			s.config.Batch.InitialBackoff,
			s.config.Batch.MaxBackoff,
			s.config.Batch.RateLimitBackoff,
			inference.IsRateLimited,
		),
		Retryable: inference.IsRetryable,
	}

	return utils.Retry(ctx, policy, func(ctx context.Context) (*inference.ExtractedOffering, error) {
		raw, err := s.inference.Invoke(ctx, inference.Request{
			Operation:       inference.OperationExtract,
			System:          extractionSystemPrompt,
			Prompt:          prompt,
			SchemaName:      "catalog_offering",
			Schema:          inference.ExtractionSchema(),
			AllowWebContext: s.config.Batch.AllowWebContext,
		})
		if err != nil {
			return nil, err
		}
		return inference.Decode[inference.ExtractedOffering](raw)
	})
}

// completeRow moves a processing row to a terminal status. Counters move
// only when this call performed the transition, so a duplicate completion
// cannot count twice.
func (s *BatchService) completeRow(ctx context.Context, jobID uuid.UUID, row *models.BatchRow, status models.BatchRowStatus, offeringID *uuid.UUID, duplicate bool, message string) (*AdvanceResult, error) {
	if _, err := row.Status.Transition(status); err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":             status,
		"result_offering_id": offeringID,
		"duplicate":          duplicate,
		"finished_at":        now,
	}
	if message != "" {
		updates["error_message"] = utils.Truncate(message, s.config.Batch.ErrorMessageLength)
	}

	var moved bool
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&models.BatchRow{}).
			Where("id = ? AND status = ?", row.ID, models.BatchRowStatusProcessing).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		moved = true

		counters := map[string]interface{}{
			"processed_count": gorm.Expr("processed_count + 1"),
		}
		if status == models.BatchRowStatusSuccess {
			counters["success_count"] = gorm.Expr("success_count + 1")
		} else {
			counters["error_count"] = gorm.Expr("error_count + 1")
			counters["last_error"] = utils.Truncate(message, s.config.Batch.ErrorMessageLength)
		}
		if duplicate {
			counters["duplicate_count"] = gorm.Expr("duplicate_count + 1")
		}
		return tx.Model(&models.BatchJob{}).Where("id = ?", jobID).Updates(counters).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete batch row: %w", err)
	}

	outcome := AdvanceProcessed
	switch {
	case !moved:
		outcome = AdvanceBusy
	case status == models.BatchRowStatusError:
		outcome = AdvanceFailed
	case duplicate:
		outcome = AdvanceDuplicate
	}
	metrics.BatchRows.WithLabelValues(outcome).Inc()

	job, err := s.GetJob(ctx, jobID, false)
	if err != nil {
		return nil, err
	}
	if moved {
		if job, err = s.completeIfCounted(ctx, job); err != nil {
			return nil, err
		}
	}

	rowID := row.ID
	result := &AdvanceResult{Outcome: outcome, Job: job, RowID: &rowID, OfferingID: offeringID}
	if status == models.BatchRowStatusError {
		result.Error = utils.Truncate(message, s.config.Batch.ErrorMessageLength)
	}
	return result, nil
}

// revertAndPause puts a rate-limited row back to pending and pauses the job.
func (s *BatchService) revertAndPause(ctx context.Context, jobID uuid.UUID, row *models.BatchRow, cause error) (*AdvanceResult, error) {
	if _, err := row.Status.Transition(models.BatchRowStatusPending); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.BatchRow{}).
		Where("id = ? AND status = ?", row.ID, models.BatchRowStatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.BatchRowStatusPending,
			"started_at": nil,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to revert batch row: %w", err)
	}

	job, err := s.GetJob(ctx, jobID, false)
	if err != nil {
		return nil, err
	}
	result, err := s.pause(ctx, job, models.PauseReasonRateLimited, cause.Error())
	if err != nil {
		return nil, err
	}
	rowID := row.ID
	result.RowID = &rowID
	result.RetryAfter = s.config.Batch.RateLimitBackoff
	metrics.BatchRows.WithLabelValues(AdvancePaused).Inc()
	return result, nil
}

func (s *BatchService) pause(ctx context.Context, job *models.BatchJob, reason models.PauseReason, message string) (*AdvanceResult, error) {
	next, err := job.Status.Transition(models.BatchJobStatusPaused)
	if err != nil {
		return &AdvanceResult{Outcome: AdvanceCompleted, Job: job}, nil
	}

	updates := map[string]interface{}{
		"status":       next,
		"pause_reason": reason,
	}
	if message != "" {
		updates["last_error"] = utils.Truncate(message, s.config.Batch.ErrorMessageLength)
	}
	if err := s.db.WithContext(ctx).Model(&models.BatchJob{}).
		Where("id = ? AND status <> ?", job.ID, models.BatchJobStatusCompleted).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to pause batch job: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id": job.ID,
		"reason": reason,
	}).Info("Batch job paused")

	job, err = s.GetJob(ctx, job.ID, false)
	if err != nil {
		return nil, err
	}
	return &AdvanceResult{Outcome: AdvancePaused, Job: job}, nil
}

// finishIfDone runs when no pending row is left. The job completes only
// when no row is still processing elsewhere.
func (s *BatchService) finishIfDone(ctx context.Context, job *models.BatchJob) (*AdvanceResult, error) {
	var processing int64
	if err := s.db.WithContext(ctx).Model(&models.BatchRow{}).
		Where("job_id = ? AND status = ?", job.ID, models.BatchRowStatusProcessing).
		Count(&processing).Error; err != nil {
		return nil, fmt.Errorf("failed to count processing rows: %w", err)
	}
	if processing > 0 {
		return &AdvanceResult{Outcome: AdvanceBusy, Job: job}, nil
	}

	job, err := s.markCompleted(ctx, job)
	if err != nil {
		return nil, err
	}
	return &AdvanceResult{Outcome: AdvanceCompleted, Job: job}, nil
}

func (s *BatchService) completeIfCounted(ctx context.Context, job *models.BatchJob) (*models.BatchJob, error) {
	if job.ProcessedCount < job.TotalCount {
		return job, nil
	}
	return s.markCompleted(ctx, job)
}

func (s *BatchService) markCompleted(ctx context.Context, job *models.BatchJob) (*models.BatchJob, error) {
	if job.Status == models.BatchJobStatusCompleted {
		return job, nil
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.BatchJob{}).
		Where("id = ? AND status <> ?", job.ID, models.BatchJobStatusCompleted).
		Updates(map[string]interface{}{
			"status":       models.BatchJobStatusCompleted,
			"pause_reason": models.PauseReasonNone,
			"completed_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete batch job: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"processed": job.ProcessedCount,
		"success":   job.SuccessCount,
		"errors":    job.ErrorCount,
	}).Info("Batch job completed")

	return s.GetJob(ctx, job.ID, false)
}

func buildOffering(extracted *inference.ExtractedOffering, input models.BatchRowInput, siteKey string, rowID uuid.UUID) *models.Offering {
	offering := &models.Offering{
		Active:           false,
		Name:             extracted.Name,
		Description:      extracted.Description,
		Category:         extracted.Category,
		Vertical:         extracted.Vertical,
		BusinessModel:    extracted.BusinessModel,
		City:             deref(extracted.City),
		Country:          deref(extracted.Country),
		Email:            firstNonEmpty(extracted.Email, input.Email),
		Phone:            firstNonEmpty(extracted.Phone, input.Phone),
		Whatsapp:         extracted.Whatsapp,
		PriceRange:       extracted.PriceRange,
		SiteKey:          siteKey,
		SourceBatchRowID: &rowID,
	}
	if input.Site != "" {
		site := strings.TrimSpace(input.Site)
		offering.Site = &site
	}
	if offering.City == "" {
		offering.City = input.City
	}
	return offering
}

func extractionPrompt(input models.BatchRowInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vendor data:\n")
	fmt.Fprintf(&b, "name: %s\n", input.Name)
	fmt.Fprintf(&b, "site: %s\n", input.Site)
	if input.Email != "" {
		fmt.Fprintf(&b, "email: %s\n", input.Email)
	}
	if input.Phone != "" {
		fmt.Fprintf(&b, "phone: %s\n", input.Phone)
	}
	if input.City != "" {
		fmt.Fprintf(&b, "city: %s\n", input.City)
	}
	if input.Notes != "" {
		fmt.Fprintf(&b, "notes: %s\n", input.Notes)
	}
	fmt.Fprintf(&b, "\nCategories: %s\n", strings.Join(models.Categories, ", "))
	fmt.Fprintf(&b, "Verticals: %s\n", strings.Join(models.Verticals, ", "))
	fmt.Fprintf(&b, "Business models: %s\n", strings.Join(models.BusinessModels, ", "))
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstNonEmpty(extracted *string, fallback string) *string {
	if v := deref(extracted); v != "" {
		return &v
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return &fallback
	}
	return nil
}
