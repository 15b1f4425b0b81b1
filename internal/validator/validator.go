package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

// New creates a new Validator instance with the marketplace's custom rules:
// "notblank" rejects strings that are empty after trimming.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &Validator{validate: v}
}

// ValidateStruct validates a struct based on its tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// FieldErrors flattens a ValidateStruct error into "Field: tag" strings.
func FieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return out
}
