package form

import (
	"fmt"
	"strings"
	"time"

	"github.com/hkinc45/dev-kitchen-onboarding/models"
	"github.com/hkinc45/dev-kitchen-onboarding/schema"
)

// AccountUpdate builds the account payload for the requested fields. Only
// fields present on the form, free of validation errors and holding a value
// are sent. Gender is upper-cased and the date of birth becomes UTC-midnight
// epoch milliseconds.
func AccountUpdate(form models.FormState, fields []string) (map[string]any, error) {
	wanted := make(map[string]struct{}, len(fields))
	for _, name := range fields {
		wanted[name] = struct{}{}
	}

	out := make(map[string]any)
	for _, field := range form.Fields {
		if _, ok := wanted[field.FieldName]; !ok {
			continue
		}
		if field.Error || schema.IsBlank(field.Value) {
			continue
		}

		value := field.Value
		switch field.FieldName {
		case models.FieldGender:
			value = strings.ToUpper(schema.Stringify(value))
		case models.FieldDOB:
			dob, err := schema.ParseDate(strings.TrimSpace(schema.Stringify(value)))
			if err != nil {
				return nil, fmt.Errorf("form: date of birth: %w", err)
			}
			value = time.Date(dob.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
		}
		out[field.FieldName] = value
	}
	return out, nil
}
