package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// Validate checks settings against their schema.
func Validate(s *Settings) error {
	if s == nil {
		return recklesserrors.NewValidationError("settings", "settings are nil", nil)
	}
	return convertValidationError(validatorInstance().Struct(s))
}

// convertValidationError normalizes validator errors into reckless validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		msg := fmt.Sprintf("%s failed validation for tag '%s'", ve.Field(), ve.Tag())
		if ve.Param() != "" {
			msg = fmt.Sprintf("%s (%s)", msg, ve.Param())
		}
		return recklesserrors.NewValidationError(ve.Field(), msg, err)
	}

	return recklesserrors.NewValidationError("settings", err.Error(), err)
}
