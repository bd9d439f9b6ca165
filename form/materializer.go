// Package form turns identity data and the form schema into the concrete
// registration field set shown to a visitor.
package form

import (
	"github.com/hkinc45/dev-kitchen-onboarding/models"
	"github.com/hkinc45/dev-kitchen-onboarding/schema"
)

// Input is everything a materialization depends on.
type Input struct {
	Step         models.WizardState
	Session      bool
	SSOAccount   models.IdentitySource
	Demographics models.IdentitySource
}

// Materializer builds FormState values. It is stateless and safe for
// concurrent use.
type Materializer struct {
	schema *schema.Schema
}

// NewMaterializer returns a Materializer over a validated schema.
func NewMaterializer(s *schema.Schema) *Materializer {
	return &Materializer{schema: s}
}

// Columns returns the columns selected for the input's step. When a session
// is linked to demographics the eligibility field is already satisfied and
// is dropped.
func (m *Materializer) Columns(in Input) []schema.Column {
	cols := m.schema.Columns(in.Step)
	if !in.Session || in.Demographics.IsEmpty() {
		return cols
	}
	eligibility := m.schema.EligibilityField()
	out := cols[:0]
	for _, col := range cols {
		if col.FieldName != eligibility {
			out = append(out, col)
		}
	}
	return out
}

// Materialize regenerates the form from scratch. It never fails: the schema
// was validated at build time so every column has a property.
func (m *Materializer) Materialize(in Input) models.FormState {
	linked := !in.Demographics.IsEmpty()
	source := sourceFor(in)

	cols := m.Columns(in)
	form := models.FormState{Fields: make([]models.FieldDescriptor, 0, len(cols))}
	for _, col := range cols {
		prop, _ := m.schema.Property(col.FieldName)
		value := firstPresent(source.Value(col.FieldName), col.Value, prop.Value)
		fromSource := !schema.IsBlank(source.Value(col.FieldName))
		required := m.schema.IsRequired(col.FieldName)
		res := schema.Validate(value, prop, schema.Options{CheckRequired: required})

		form.Fields = append(form.Fields, models.FieldDescriptor{
			FieldName:  col.FieldName,
			Value:      value,
			Label:      prop.Label,
			Required:   required,
			ReadOnly:   linked && fromSource && col.FieldName != models.FieldEmail,
			Error:      !res.Valid(),
			HelperText: schema.TransformErrors(res.Errors),
		})
	}
	return form
}

// sourceFor prefers linked demographics, then the SSO account, then nothing.
func sourceFor(in Input) models.IdentitySource {
	if !in.Demographics.IsEmpty() {
		return in.Demographics
	}
	if !in.SSOAccount.IsEmpty() {
		return in.SSOAccount
	}
	return models.IdentitySource{}
}

func firstPresent(values ...any) any {
	for _, v := range values {
		if !schema.IsBlank(v) {
			return v
		}
	}
	return nil
}

// ApplyMatchedEmail patches the email field in place with a confirmed
// existing address. The rest of the form is left untouched. It reports
// whether the form had an email field.
func ApplyMatchedEmail(form *models.FormState, email string) bool {
	field, ok := form.Field(models.FieldEmail)
	if !ok {
		return false
	}
	field.Value = email
	field.Error = false
	field.HelperText = ""
	return true
}
