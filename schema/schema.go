// Package schema derives the registration form schema from product
// configuration and validates individual field values against it.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hkinc45/dev-kitchen-onboarding/config"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

var errNoColumns = errors.New("schema: product defines no columns")

// Column is a field placement on the registration form.
type Column struct {
	FieldName string
	Value     any
	Steps     []models.WizardState
}

// Property is the compiled schema entry of a field.
type Property struct {
	Type       string
	Format     string
	Label      string
	Value      any
	MinLength  int
	MaxLength  int
	Pattern    *regexp.Regexp
	PatternMsg string
	Enum       []string
}

// Schema is the immutable, validated form schema for one product.
type Schema struct {
	columns          []Column
	properties       map[string]Property
	required         map[string]struct{}
	eligibilityField string
}

var accountSteps = []models.WizardState{
	models.WizardCreateAccount,
	models.WizardCreateAccountWithMembership,
}

// Build compiles the product configuration. A column without a property
// definition is a configuration error reported here, never at
// materialization time.
func Build(product config.ProductConfig) (*Schema, error) {
	if len(product.Columns) == 0 {
		return nil, errNoColumns
	}

	s := &Schema{
		columns:          make([]Column, 0, len(product.Columns)),
		properties:       make(map[string]Property, len(product.Properties)),
		required:         make(map[string]struct{}, len(product.Required)),
		eligibilityField: product.IDConfig.Field,
	}

	for name, raw := range product.Properties {
		prop := Property{
			Type:       strings.ToLower(raw.Type),
			Format:     strings.ToLower(raw.Format),
			Label:      sanitizeText(raw.Label),
			Value:      raw.Value,
			MinLength:  raw.MinLength,
			MaxLength:  raw.MaxLength,
			PatternMsg: sanitizeText(raw.PatternMsg),
			Enum:       raw.Enum,
		}
		if raw.Pattern != "" {
			re, err := regexp.Compile(raw.Pattern)
			if err != nil {
				return nil, fmt.Errorf("schema: property %q: %w", name, err)
			}
			prop.Pattern = re
		}
		s.properties[name] = prop
	}

	for _, raw := range product.Columns {
		if _, ok := s.properties[raw.FieldName]; !ok {
			return nil, fmt.Errorf("schema: column %q has no property definition", raw.FieldName)
		}
		col := Column{FieldName: raw.FieldName, Value: raw.Value}
		for _, name := range raw.Steps {
			step, err := models.ParseWizardState(name)
			if err != nil {
				return nil, fmt.Errorf("schema: column %q: %w", raw.FieldName, err)
			}
			col.Steps = append(col.Steps, step)
		}
		if len(col.Steps) == 0 {
			if raw.FieldName == s.eligibilityField {
				col.Steps = []models.WizardState{models.WizardCreateAccountWithMembership}
			} else {
				col.Steps = accountSteps
			}
		}
		s.columns = append(s.columns, col)
	}

	for _, name := range product.Required {
		s.required[name] = struct{}{}
	}
	return s, nil
}

// Columns returns the ordered columns shown on the given wizard step. The
// result is freshly allocated and deterministic for a given schema.
func (s *Schema) Columns(step models.WizardState) []Column {
	out := make([]Column, 0, len(s.columns))
	for _, col := range s.columns {
		for _, candidate := range col.Steps {
			if candidate == step {
				out = append(out, col)
				break
			}
		}
	}
	return out
}

// FieldNames returns the ordered field names shown on the given wizard step.
func (s *Schema) FieldNames(step models.WizardState) []string {
	cols := s.Columns(step)
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		out = append(out, col.FieldName)
	}
	return out
}

// Property returns the compiled property for a field.
func (s *Schema) Property(name string) (Property, bool) {
	prop, ok := s.properties[name]
	return prop, ok
}

// IsRequired reports whether the field is in the configured required set.
func (s *Schema) IsRequired(name string) bool {
	_, ok := s.required[name]
	return ok
}

// EligibilityField names the membership id field.
func (s *Schema) EligibilityField() string {
	return s.eligibilityField
}

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// sanitizeText strips markup from operator supplied labels and messages.
func sanitizeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(textPolicy.Sanitize(trimmed))
}
