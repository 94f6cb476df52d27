// internal/handlers/transaction.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

type TransactionHandler struct {
	matchService   *services.MatchService
	unlockService  *services.UnlockService
	paymentService *services.PaymentService
}

func NewTransactionHandler(matchService *services.MatchService, unlockService *services.UnlockService, paymentService *services.PaymentService) *TransactionHandler {
	return &TransactionHandler{
		matchService:   matchService,
		unlockService:  unlockService,
		paymentService: paymentService,
	}
}

// POST /transactions
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	transaction, created, err := h.matchService.CreateTransaction(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}

	view, err := h.unlockService.View(c.Request.Context(), transaction)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}

	if created {
		utils.CreatedResponse(c, gin.H{
			"transaction": view,
			"message":     i18n.T(lang, i18n.KeyTransactionCreated),
		})
		return
	}
	utils.SuccessResponse(c, gin.H{"transaction": view})
}

// GET /transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	transaction, err := h.unlockService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	h.respondView(c, transaction, nil)
}

// GET /sessions/:session_id/transaction
func (h *TransactionHandler) GetTransactionBySession(c *gin.Context) {
	transaction, err := h.unlockService.GetBySession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	h.respondView(c, transaction, nil)
}

// PUT /transactions/:id/selection
func (h *TransactionHandler) SelectOfferings(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SelectOfferingsRequest
	if !bindJSON(c, &req) {
		return
	}

	transaction, err := h.unlockService.SelectOfferings(c.Request.Context(), id, req.OfferingIDs)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	h.respondView(c, transaction, gin.H{"message": i18n.T(lang, i18n.KeySelectionSaved)})
}

// POST /transactions/:id/rematch
func (h *TransactionHandler) Rematch(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	transaction, err := h.matchService.Rematch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	h.respondView(c, transaction, gin.H{"message": i18n.T(lang, i18n.KeyTransactionRematched)})
}

// POST /transactions/:id/checkout
func (h *TransactionHandler) CreateCheckout(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.CheckoutRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	opts := services.CheckoutOptions{
		OfferingIDs: req.OfferingIDs,
		PayerEmail:  req.PayerEmail,
	}
	if req.SourceOfferingID != nil {
		opts.SourceOfferingID = *req.SourceOfferingID
	}

	result, err := h.paymentService.CreateCheckout(c.Request.Context(), id, req.Purpose, opts)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	utils.SuccessResponse(c, gin.H{"checkout": result})
}

// GET /transactions/:id/payment-status
func (h *TransactionHandler) CheckPaymentStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.paymentService.CheckStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	h.respondStatus(c, result)
}

// GET /sessions/:session_id/payment-status
func (h *TransactionHandler) CheckPaymentStatusBySession(c *gin.Context) {
	result, err := h.paymentService.CheckStatusBySession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	h.respondStatus(c, result)
}

// POST /transactions/:id/offerings/:offering_id/rating
func (h *TransactionHandler) RateOffering(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	offeringID, ok := parseUUIDParam(c, "offering_id")
	if !ok {
		return
	}

	var req services.RateOfferingRequest
	if !bindJSON(c, &req) {
		return
	}

	offering, err := h.unlockService.RateOffering(c.Request.Context(), id, offeringID, &req)
	if err != nil {
		respondError(c, err, "offering")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"offering": offering.Public(),
		"message":  i18n.T(lang, i18n.KeyOfferingRated),
	})
}

func (h *TransactionHandler) respondView(c *gin.Context, transaction *models.Transaction, extra gin.H) {
	view, err := h.unlockService.View(c.Request.Context(), transaction)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}

	body := gin.H{"transaction": view}
	for k, v := range extra {
		body[k] = v
	}
	utils.SuccessResponse(c, body)
}

func (h *TransactionHandler) respondStatus(c *gin.Context, result *services.StatusResult) {
	lang := utils.GetLangFromContext(c)

	key := i18n.KeyPaymentPending
	switch result.Transaction.PaymentStatus {
	case models.PaymentStatusPaid:
		key = i18n.KeyPaymentSuccess
	case models.PaymentStatusCancelled:
		key = i18n.KeyPaymentFailed
	}

	h.respondView(c, result.Transaction, gin.H{
		"outcomes": result.Outcomes,
		"message":  i18n.T(lang, key),
	})
}
