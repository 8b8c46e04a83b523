package rest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names in error meta
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest returns per-field messages, or nil when req is valid.
func validateRequest(req any) map[string]string {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return map[string]string{"body": err.Error()}
	}
	meta := make(map[string]string, len(ves))
	for _, fe := range ves {
		meta[fe.Field()] = formatFieldError(fe)
	}
	return meta
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with", "required_if":
		return "is required"
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "latitude":
		return "must be a latitude in [-90, 90]"
	case "longitude":
		return "must be a longitude in [-180, 180]"
	case "uuid":
		return "must be a valid uuid"
	case "gtefield":
		return fmt.Sprintf("must not be before %s", fe.Param())
	default:
		return "is invalid"
	}
}
