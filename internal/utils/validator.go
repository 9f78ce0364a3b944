// internal/utils/validator.go
package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("dmy_date", validateDMYDate)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// validateDMYDate accepts the dd/mm/yyyy dates used on issuance forms.
func validateDMYDate(fl validator.FieldLevel) bool {
	_, err := time.Parse("02/01/2006", strings.TrimSpace(fl.Field().String()))
	return err == nil
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
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
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "dmy_date":
		return e.Field() + " must be a date in dd/mm/yyyy format"
	default:
		return e.Field() + " is invalid"
	}
}
