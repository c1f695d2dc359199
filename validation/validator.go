package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/sean-she/photoflow-storage/errors"
)

// FieldError names one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator accumulates field errors across chained checks. Checks never
// short-circuit, so one Validate call reports every failing field at once:
//
//	v := validation.New()
//	v.Required("bucket", cfg.Bucket).
//	    OneOf("provider", cfg.Provider, []string{"s3", "local", "memory"}).
//	    Range("concurrency", cfg.Concurrency, 0, 256)
//	if appErr := v.Validate(); appErr != nil {
//	    return appErr
//	}
type Validator struct {
	fieldErrors []FieldError
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a failed check for field.
func (v *Validator) AddError(field, message string) {
	v.fieldErrors = append(v.fieldErrors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.fieldErrors) > 0
}

// Errors returns the recorded field errors in check order.
func (v *Validator) Errors() []FieldError {
	return v.fieldErrors
}

// Validate folds the recorded field errors into a single AppError, with
// the per-field breakdown attached as details. It returns nil when every
// check passed.
func (v *Validator) Validate() *errors.AppError {
	if len(v.fieldErrors) == 0 {
		return nil
	}

	var msg strings.Builder
	for i, fe := range v.fieldErrors {
		if i > 0 {
			msg.WriteString("; ")
		}
		msg.WriteString(fe.Field)
		msg.WriteString(": ")
		msg.WriteString(fe.Message)
	}

	return errors.Validation(msg.String()).WithDetail("fields", v.fieldErrors)
}

// Required fails when value is empty or whitespace-only.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// MaxLength fails when value is longer than maxLen bytes.
func (v *Validator) MaxLength(field, value string, maxLen int) *Validator {
	if len(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be %d characters or less", maxLen))
	}
	return v
}

// Min fails when value is below floor.
func (v *Validator) Min(field string, value, floor int) *Validator {
	if value < floor {
		v.AddError(field, fmt.Sprintf("must be at least %d", floor))
	}
	return v
}

// Max fails when value is above ceil.
func (v *Validator) Max(field string, value, ceil int) *Validator {
	if value > ceil {
		v.AddError(field, fmt.Sprintf("must be %d or less", ceil))
	}
	return v
}

// Range fails when value lies outside [lo, hi].
func (v *Validator) Range(field string, value, lo, hi int) *Validator {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", lo, hi))
	}
	return v
}

// OneOf fails when a non-empty value is not in allowed. Empty values
// pass; combine with Required when the field is mandatory.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" || slices.Contains(allowed, value) {
		return v
	}
	v.AddError(field, "must be one of: "+strings.Join(allowed, ", "))
	return v
}

// Pattern fails when a non-empty value does not match the expression.
// Empty values pass, as with OneOf.
func (v *Validator) Pattern(field, value, expr string) *Validator {
	if value == "" {
		return v
	}
	re, err := regexp.Compile(expr)
	if err != nil || !re.MatchString(value) {
		v.AddError(field, "does not match required format")
	}
	return v
}

// Custom records message for field when ok is false.
func (v *Validator) Custom(ok bool, field, message string) *Validator {
	if !ok {
		v.AddError(field, message)
	}
	return v
}
