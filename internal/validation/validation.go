// Package validation checks submitted group forms. Struct rules live in
// `validate` tags on the domain types and are enforced with
// go-playground/validator.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/bcnelson/labgroups/internal/domain"
	"github.com/go-playground/validator/v10"
)

// MaxNameLength is the longest accepted group or display name, in characters.
const MaxNameLength = 256

// Validator validates forms against their struct tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator that reports errors under form field names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// NormalizeGroupForm trims surrounding whitespace from the name fields.
func NormalizeGroupForm(f domain.GroupForm) domain.GroupForm {
	f.DisplayName = strings.TrimSpace(f.DisplayName)
	f.GroupName = strings.TrimSpace(f.GroupName)
	return f
}

// GroupForm normalizes and validates f. The returned form is the trimmed one
// callers should persist.
func (v *Validator) GroupForm(f domain.GroupForm) (domain.GroupForm, error) {
	f = NormalizeGroupForm(f)
	if err := v.validate.Struct(f); err != nil {
		return f, translate(err)
	}
	return f, nil
}

func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	var errs ValidationErrors
	for _, fe := range fieldErrs {
		value, _ := fe.Value().(string)
		errs.Add(fe.Field(), value, fe.Tag(), fe.Param(), message(fe))
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Please enter a value"
	case "max":
		return "Enter a value not more than " + fe.Param() + " characters long"
	default:
		return "Invalid value"
	}
}
