package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationErrors flattens validator errors into field -> message. Field names
// are the struct field names; err values that are not validation errors land
// under "general".
func ValidationErrors(err error) map[string]string {
	out := make(map[string]string)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	label := humanize(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more", label, fe.Param())
	case "eqfield":
		return label + " does not match"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "Enter a valid URL"
	default:
		return label + " is invalid"
	}
}

// humanize turns "PasswordConfirmation" into "Password confirmation".
func humanize(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
			r = r - 'A' + 'a'
		}
		b.WriteRune(r)
	}
	return b.String()
}
