// internal/utils/validator.go
package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/javajoker/vendormatch-backend/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("category", oneOfList(models.Categories))
	validate.RegisterValidation("vertical", oneOfList(models.Verticals))
	validate.RegisterValidation("business_model", oneOfList(models.BusinessModels))
	validate.RegisterValidation("feedback_kind", validateFeedbackKind)
	validate.RegisterValidation("purpose", validatePurpose)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func oneOfList(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, a := range allowed {
			if a == value {
				return true
			}
		}
		return false
	}
}

func validateFeedbackKind(fl validator.FieldLevel) bool {
	return models.FeedbackKind(fl.Field().String()).Valid()
}

func validatePurpose(fl validator.FieldLevel) bool {
	return models.PaymentPurpose(fl.Field().String()).Valid()
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "category":
		return e.Field() + " must be one of: " + strings.Join(models.Categories, ", ")
	case "vertical":
		return e.Field() + " must be one of: " + strings.Join(models.Verticals, ", ")
	case "business_model":
		return e.Field() + " must be one of: " + strings.Join(models.BusinessModels, ", ")
	case "feedback_kind":
		return "feedback_kind must be positive, already_known or irrelevant"
	default:
		return e.Field() + " is invalid"
	}
}
