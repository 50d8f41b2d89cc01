package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/consulagent/errors"
)

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator checks operator input field by field and reports every failure
// at once. Methods chain:
//
//	err := validation.New().Required("service", name).Port("port", port).Error()
type Validator struct {
	failed []FieldError
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

func (v *Validator) fail(field, message string) *Validator {
	v.failed = append(v.failed, FieldError{Field: field, Message: message})
	return v
}

// Required rejects an empty or blank value.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.fail(field, "is required")
	}
	return v
}

// Port rejects values outside 1-65535.
func (v *Validator) Port(field string, value int) *Validator {
	if value < 1 || value > maxPort {
		return v.fail(field, fmt.Sprintf("must be between 1 and %d, got %d", maxPort, value))
	}
	return v
}

// Duration rejects values time.ParseDuration does not accept.
func (v *Validator) Duration(field, value string) *Validator {
	if _, err := time.ParseDuration(value); err != nil {
		return v.fail(field, fmt.Sprintf("must be a duration such as 10s or 90m, got %q", value))
	}
	return v
}

// Custom records message for field unless ok.
func (v *Validator) Custom(ok bool, field, message string) *Validator {
	if !ok {
		return v.fail(field, message)
	}
	return v
}

// Error returns an INVALID_INPUT AppError naming every failed field, or nil.
func (v *Validator) Error() error {
	if len(v.failed) == 0 {
		return nil
	}
	messages := make([]string, len(v.failed))
	for i, e := range v.failed {
		messages[i] = e.Field + " " + e.Message
	}
	return errors.InvalidInput(v.failed[0].Field, strings.Join(messages, "; ")).
		WithDetail("fields", v.failed)
}
