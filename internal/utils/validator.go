// internal/utils/validator.go
package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/javajoker/imi-ownership/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("bps", validateBps)
	validate.RegisterValidation("ownership_type", validateOwnershipType)
	validate.RegisterValidation("resolution_action", validateResolutionAction)
	validate.RegisterValidation("derivative_type", validateDerivativeType)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// validateBps accepts a share in (0, 10000].
func validateBps(fl validator.FieldLevel) bool {
	v := fl.Field().Int()
	return v > 0 && v <= models.FullShareBps
}

func validateOwnershipType(fl validator.FieldLevel) bool {
	return models.OwnershipType(fl.Field().String()).Valid()
}

func validateResolutionAction(fl validator.FieldLevel) bool {
	return models.ResolutionAction(fl.Field().String()).Valid()
}

func validateDerivativeType(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v == "" || models.DerivativeType(v).Valid()
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
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "bps":
		return e.Field() + " must be between 1 and 10000 basis points"
	case "ownership_type":
		return e.Field() + " must be one of primary, secondary, contributor, derivative"
	case "resolution_action":
		return e.Field() + " must be one of CONFIRM, MODIFY, REMOVE"
	case "derivative_type":
		return e.Field() + " must be one of remix, adaptation, translation, compilation, other"
	default:
		return e.Field() + " is invalid"
	}
}
