package onboarding

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/analytics"
	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/form"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
	"github.com/hkinc45/dev-kitchen-onboarding/schema"
)

// OpenSignIn shows the sign-in step and reports the login modal right away.
func (o *Orchestrator) OpenSignIn() Directive {
	o.scheduler.Cancel()
	o.scheduler.Fire(analytics.OpenLoginModal)
	o.openStep(models.WizardSignIn)
	return o.Directive()
}

// OpenSignUp shows the membership step while the eligibility field is still
// needed, and plain account creation once demographics are linked.
func (o *Orchestrator) OpenSignUp() Directive {
	o.scheduler.Cancel()
	cols := columnNames(o.materializer.Columns(o.input(registrationStep)))
	if slices.Contains(cols, o.schema.EligibilityField()) {
		o.openStep(models.WizardCreateAccountWithMembership)
	} else {
		o.openStep(models.WizardCreateAccount)
	}
	return o.Directive()
}

// CloseModal hides whatever is open. Identity sources are kept so the form
// comes back pre-filled.
func (o *Orchestrator) CloseModal() Directive {
	o.scheduler.Cancel()
	o.state.Error = nil
	o.state.Loading = false
	o.state.Wizard = models.WizardNone
	o.state.Modal = models.ModalNone
	return o.Directive()
}

// CompleteSignIn is called once the visitor authenticated through the
// sign-in step. It marks the session as login-originated and reruns the
// pipeline as an explicit run.
func (o *Orchestrator) CompleteSignIn(ctx context.Context) Directive {
	d := o.Login(ctx, TriggerUser)
	if o.state.Session {
		o.state.CameThroughLogin = true
	}
	return d
}

// ReconcileEmail looks for an identity email that already has an account and
// patches the form's email field with it. It reports whether one was found.
func (o *Orchestrator) ReconcileEmail(ctx context.Context) (Directive, bool) {
	email, found, err := o.reconciler.Reconcile(ctx, o.state.SSOAccount, o.state.Demographics)
	if err != nil {
		o.fail(err)
		return o.Directive(), false
	}
	if found {
		form.ApplyMatchedEmail(&o.state.Form, email)
	}
	return o.Directive(), found
}

// SetField records a value typed by the visitor and revalidates it. Editing
// the postal code or country re-derives the email opt-in default.
func (o *Orchestrator) SetField(ctx context.Context, name string, value any) (Directive, error) {
	field, ok := o.state.Form.Field(name)
	if !ok {
		return o.Directive(), apierrors.NewBadRequestError(fmt.Sprintf("field %q is not on the current form", name))
	}
	if field.ReadOnly {
		return o.Directive(), apierrors.NewBadRequestError(fmt.Sprintf("field %q is read-only", name))
	}
	prop, _ := o.schema.Property(name)
	res := schema.Validate(value, prop, schema.Options{CheckRequired: field.Required})
	field.Value = value
	field.Error = !res.Valid()
	field.HelperText = schema.TransformErrors(res.Errors)

	if name == models.FieldPostalCode || name == models.FieldCountry {
		optIn, err := DefaultEmailOptIn(ctx, o.gateway, o.state.Form)
		if err != nil {
			o.fail(err)
			return o.Directive(), nil
		}
		o.state.EmailOptIn = optIn
	}
	return o.Directive(), nil
}

// SetEmailOptIn records the visitor's own opt-in choice.
func (o *Orchestrator) SetEmailOptIn(optIn bool) Directive {
	o.state.EmailOptIn = optIn
	return o.Directive()
}

// UpdateAccount sends the named fields of the current form to the account
// service. A failure is returned and also shown in the error modal.
func (o *Orchestrator) UpdateAccount(ctx context.Context, fields []string) (Directive, error) {
	payload, err := form.AccountUpdate(o.state.Form, fields)
	if err != nil {
		apiErr := o.fail(err)
		return o.Directive(), apiErr
	}
	if len(payload) == 0 {
		o.logger.Debug("Nothing to update on the account", zap.Strings("fields", fields))
		return o.Directive(), nil
	}
	if err := o.gateway.UpdateAccount(ctx, payload); err != nil {
		apiErr := o.fail(err)
		return o.Directive(), apiErr
	}
	o.logger.Info("Updated account", zap.Int("fields", len(payload)))
	return o.Directive(), nil
}
