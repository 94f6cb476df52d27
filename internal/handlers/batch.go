// internal/handlers/batch.go
package handlers

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

const defaultStuckAfter = 15 * time.Minute

type BatchHandler struct {
	batchService   *services.BatchService
	storageService *services.StorageService
}

func NewBatchHandler(batchService *services.BatchService, storageService *services.StorageService) *BatchHandler {
	return &BatchHandler{
		batchService:   batchService,
		storageService: storageService,
	}
}

// POST /admin/batch-jobs
func (h *BatchHandler) CreateJob(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateBatchJobRequest
	if !bindJSON(c, &req) {
		return
	}

	job, err := h.batchService.CreateJob(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "batch")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"job":     job,
		"message": i18n.T(lang, i18n.KeyBatchCreated),
	})
}

// POST /admin/batch-jobs/upload
func (h *BatchHandler) UploadJob(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "file"), nil)
		return
	}
	defer file.Close()

	data, err := h.storageService.ReadUpload(file, header, services.BatchUploadOptions)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUploadEmpty):
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileEmpty), nil)
		case errors.Is(err, services.ErrUploadTooLarge):
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileTooLarge), nil)
		case errors.Is(err, services.ErrUploadInvalidType):
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileInvalidType), nil)
		default:
			utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed))
		}
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = header.Filename
	}

	job, err := h.batchService.CreateJobFromCSV(c.Request.Context(), name, header.Filename, data)
	if err != nil {
		respondError(c, err, "batch")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"job":     job,
		"message": i18n.T(lang, i18n.KeyBatchCreated),
	})
}

// GET /admin/batch-jobs
func (h *BatchHandler) ListJobs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	jobs, total, err := h.batchService.ListJobs(c.Request.Context(), params)
	if err != nil {
		respondError(c, err, "batch")
		return
	}

	result := utils.CreatePaginationResult(jobs, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/batch-jobs/:id
func (h *BatchHandler) GetJob(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	withRows, _ := strconv.ParseBool(c.DefaultQuery("rows", "false"))

	job, err := h.batchService.GetJob(c.Request.Context(), id, withRows)
	if err != nil {
		respondError(c, err, "batch")
		return
	}
	utils.SuccessResponse(c, gin.H{"job": job})
}

// POST /admin/batch-jobs/:id/advance
func (h *BatchHandler) Advance(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	pause, _ := strconv.ParseBool(c.DefaultQuery("pause", "false"))

	result, err := h.batchService.Advance(c.Request.Context(), id, services.AdvanceOptions{Pause: pause})
	if err != nil {
		respondError(c, err, "batch")
		return
	}

	if result.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
	}
	utils.SuccessResponse(c, result)
}

// POST /admin/batch-jobs/:id/resume
func (h *BatchHandler) Resume(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	job, err := h.batchService.Resume(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "batch")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"job":     job,
		"message": i18n.T(lang, i18n.KeyBatchResumed),
	})
}

// GET /admin/batch-jobs/:id/stuck
func (h *BatchHandler) StuckRows(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	olderThan := defaultStuckAfter
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			lang := utils.GetLangFromContext(c)
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "older_than"), nil)
			return
		}
		olderThan = d
	}

	rows, err := h.batchService.StuckRows(c.Request.Context(), id, olderThan)
	if err != nil {
		respondError(c, err, "batch")
		return
	}
	utils.SuccessResponse(c, gin.H{"rows": rows})
}

// POST /admin/batch-jobs/:id/rows/:row_id/requeue
func (h *BatchHandler) RequeueRow(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rowID, ok := parseUUIDParam(c, "row_id")
	if !ok {
		return
	}

	row, err := h.batchService.RequeueRow(c.Request.Context(), id, rowID)
	if err != nil {
		respondError(c, err, "batch")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"row":     row,
		"message": i18n.T(lang, i18n.KeyBatchRequeued),
	})
}
