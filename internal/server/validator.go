package server

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/getailigned/notification-service/internal/common/errors"
)

// AppValidator wraps go-playground/validator for echo.
type AppValidator struct {
	validator *validator.Validate
}

func NewAppValidator() *AppValidator {
	return &AppValidator{validator: validator.New()}
}

// Validate validates a struct using validator tags and reports the first
// failing field.
func (v *AppValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return errors.NewValidationFailedError(
				fmt.Sprintf("field %s failed on '%s' validation", fe.Field(), fe.Tag()),
			)
		}
		return errors.NewValidationFailedError(err.Error())
	}
	return nil
}
