// internal/handlers/errors.go
package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

// respondError maps the service error taxonomy onto the response envelope.
// fallback names the resource for not-found errors that do not carry one.
func respondError(c *gin.Context, err error, fallback string) {
	lang := utils.GetLangFromContext(c)

	var svcErr *services.ServiceError
	message := ""
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}

	switch {
	case errors.Is(err, services.ErrAuthenticationFailed):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidWebhook))

	case errors.Is(err, services.ErrNotFound):
		resource := fallback
		if svcErr != nil && svcErr.Resource != "" {
			resource = svcErr.Resource
		}
		utils.NotFoundResponse(c, resource)

	case errors.Is(err, services.ErrInvalidSelection):
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_SELECTION", i18n.T(lang, i18n.KeySelectionInvalid), message)

	case errors.Is(err, services.ErrAlreadyPaid):
		utils.ErrorResponse(c, http.StatusConflict, "ALREADY_PAID", i18n.T(lang, i18n.KeySelectionAlreadyPaid), message)

	case errors.Is(err, services.ErrDataIntegrityViolation):
		logrus.WithError(err).Error("Data integrity violation")
		utils.ErrorResponse(c, http.StatusConflict, "DATA_INTEGRITY_VIOLATION", i18n.T(lang, i18n.KeyPaymentIntegrity), message)

	case errors.Is(err, services.ErrMissingPurposeMetadata):
		utils.ErrorResponse(c, http.StatusConflict, "MISSING_PURPOSE_METADATA", i18n.T(lang, i18n.KeyPaymentMissingTarget), message)

	case errors.Is(err, services.ErrConcurrentUpdate):
		utils.ConflictResponse(c, err.Error())

	case errors.Is(err, services.ErrRateLimited):
		retryAfter := 30
		if svcErr != nil && svcErr.RetryAfter > 0 {
			retryAfter = int(math.Ceil(svcErr.RetryAfter.Seconds()))
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED", i18n.T(lang, i18n.KeyRateLimited), gin.H{"retry_after": retryAfter})

	case errors.Is(err, services.ErrUpstreamUnavailable):
		logrus.WithError(err).Warn("Upstream unavailable")
		utils.BadGatewayResponse(c, "")

	default:
		logrus.WithError(err).Error("Unhandled service error")
		utils.InternalErrorResponse(c, "")
	}
}

// bindJSON binds and validates a request body, writing the error response
// itself. It returns false when the handler should stop.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}
