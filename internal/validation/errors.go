package validation

import (
	"fmt"
	"strings"
)

// ValidationError is one failed rule on a form field. Code is the validator
// tag ("required", "max") and Param its argument, so callers can render
// their own message.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Code    string `json:"code"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors lists every failed rule of a form in field order.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}

// Add records a failed rule.
func (e *ValidationErrors) Add(field, value, code, param, message string) {
	*e = append(*e, &ValidationError{Field: field, Value: value, Code: code, Param: param, Message: message})
}

// ByField returns the first error for each field, keyed by field name.
func (e ValidationErrors) ByField() map[string]*ValidationError {
	m := make(map[string]*ValidationError, len(e))
	for _, ve := range e {
		if _, ok := m[ve.Field]; !ok {
			m[ve.Field] = ve
		}
	}
	return m
}
