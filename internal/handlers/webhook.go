// internal/handlers/webhook.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

const maxWebhookBody = 1 << 20

// Signature headers sent by the gateway with every notification.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderSignature = "X-Signature"
)

type WebhookHandler struct {
	paymentService *services.PaymentService
}

func NewWebhookHandler(paymentService *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
	}
}

// POST /webhooks/payments
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}
	if len(body) > maxWebhookBody {
		lang := utils.GetLangFromContext(c)
		utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", i18n.T(lang, i18n.KeyWebhookTooLarge), nil)
		return
	}

	result, err := h.paymentService.HandleWebhook(c.Request.Context(), services.WebhookRequest{
		RequestID: c.GetHeader(HeaderRequestID),
		Signature: c.GetHeader(HeaderSignature),
		Body:      body,
	})
	if err != nil {
		respondError(c, err, "transaction")
		return
	}

	c.JSON(http.StatusOK, utils.APIResponse{
		Success: true,
		Data:    result,
	})
}
