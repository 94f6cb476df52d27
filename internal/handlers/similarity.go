// internal/handlers/similarity.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

type SimilarityHandler struct {
	similarityService *services.SimilarityService
}

func NewSimilarityHandler(similarityService *services.SimilarityService) *SimilarityHandler {
	return &SimilarityHandler{
		similarityService: similarityService,
	}
}

// POST /transactions/:id/similar
func (h *SimilarityHandler) Generate(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.GenerateSimilarRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.similarityService.Generate(c.Request.Context(), id, req.SourceOfferingID)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	utils.SuccessResponse(c, result)
}

// POST /transactions/:id/similar/checkout
func (h *SimilarityHandler) CreateCheckout(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SimilarityCheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.similarityService.CreateCheckout(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}
	utils.SuccessResponse(c, gin.H{"checkout": result})
}

// POST /transactions/:id/similar/feedback
func (h *SimilarityHandler) RecordFeedback(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}

	feedback, err := h.similarityService.RecordFeedback(c.Request.Context(), id, req.SourceOfferingID, req.TargetOfferingID, req.Kind)
	if err != nil {
		respondError(c, err, "transaction")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"feedback": feedback,
		"message":  i18n.T(lang, i18n.KeyFeedbackRecorded),
	})
}
