// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

type AdminHandler struct {
	adminService   *services.AdminService
	catalogService *services.CatalogService
	unlockService  *services.UnlockService
}

func NewAdminHandler(adminService *services.AdminService, catalogService *services.CatalogService, unlockService *services.UnlockService) *AdminHandler {
	return &AdminHandler{
		adminService:   adminService,
		catalogService: catalogService,
		unlockService:  unlockService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/transactions
func (h *AdminHandler) GetTransactions(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := services.AdminTransactionFilter{
		PaginationParams: params,
	}

	if createdAfter := c.Query("created_after"); createdAfter != "" {
		if t, err := time.Parse("2006-01-02", createdAfter); err == nil {
			filter.CreatedAfter = &t
		}
	}

	if createdBefore := c.Query("created_before"); createdBefore != "" {
		if t, err := time.Parse("2006-01-02", createdBefore); err == nil {
			filter.CreatedBefore = &t
		}
	}

	transactions, total, err := h.adminService.GetTransactions(c.Request.Context(), filter)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(transactions, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/webhook-events
func (h *AdminHandler) GetWebhookEvents(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	events, total, err := h.adminService.GetWebhookEvents(c.Request.Context(), services.AdminWebhookFilter{
		PaginationParams: params,
		Outcome:          c.Query("outcome"),
		ResourceID:       c.Query("resource_id"),
	})
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(events, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	logs, total, err := h.adminService.GetAuditLogs(c.Request.Context(), params, c.Query("resource_type"))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(logs, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/offerings/pending
func (h *AdminHandler) GetPendingOfferings(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	offerings, total, err := h.catalogService.ListPending(c.Request.Context(), params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(offerings, total, params)
	utils.PaginatedResponse(c, result)
}

// PUT /admin/offerings/:id/activate
func (h *AdminHandler) ActivateOffering(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	operator, exists := utils.GetOperatorFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	offering, err := h.adminService.ActivateOffering(c.Request.Context(), id, operator)
	if err != nil {
		respondError(c, err, "offering")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"offering": offering,
		"message":  i18n.T(lang, i18n.KeyOfferingActivated),
	})
}

// POST /admin/offerings/dedup
func (h *AdminHandler) RunDedupPass(c *gin.Context) {
	operator, exists := utils.GetOperatorFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	report, err := h.adminService.RunDedupPass(c.Request.Context(), operator)
	if err != nil {
		respondError(c, err, "offering")
		return
	}
	utils.SuccessResponse(c, gin.H{"report": report})
}

// POST /admin/transactions/:id/additional
func (h *AdminHandler) ApproveAdditional(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ApproveAdditionalRequest
	if !bindJSON(c, &req) {
		return
	}

	transaction, err := h.unlockService.ApproveAdditional(c.Request.Context(), id, req.OfferingIDs)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}

	view, err := h.unlockService.View(c.Request.Context(), transaction)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	utils.SuccessResponse(c, gin.H{"transaction": view})
}
