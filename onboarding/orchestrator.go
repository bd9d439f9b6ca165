// Package onboarding drives a visitor from landing to the right registration
// step, to the preferences step, or out to the app.
//
// An Orchestrator owns the state of one visitor. It is not safe for
// concurrent use; callers serialize intents per visitor.
package onboarding

import (
	"context"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/analytics"
	"github.com/hkinc45/dev-kitchen-onboarding/clients"
	"github.com/hkinc45/dev-kitchen-onboarding/consent"
	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/form"
	"github.com/hkinc45/dev-kitchen-onboarding/identity"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
	"github.com/hkinc45/dev-kitchen-onboarding/schema"
)

// registrationStep is the column superset used while no step is open.
const registrationStep = models.WizardCreateAccountWithMembership

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithScheduler sets the analytics scheduler. The orchestrator closes it on Close.
func WithScheduler(s *analytics.Scheduler) Option {
	return func(o *Orchestrator) {
		o.scheduler = s
	}
}

// WithRecorder sets where finished login runs are recorded.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithClock overrides the time source used for cache busting and audit stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSessionID tags logs and decisions with the visitor's session id.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// WithConsentOptions tunes member-status resolution.
func WithConsentOptions(opts consent.Options) Option {
	return func(o *Orchestrator) {
		o.consentOpts = opts
	}
}

// WithRedirectURL sets where eligible, enrolled members are sent.
func WithRedirectURL(url string) Option {
	return func(o *Orchestrator) {
		o.redirectURL = url
	}
}

// Orchestrator is the onboarding state machine for one visitor.
type Orchestrator struct {
	gateway      clients.Gateway
	schema       *schema.Schema
	materializer *form.Materializer
	reconciler   *identity.Reconciler
	scheduler    *analytics.Scheduler
	recorder     Recorder
	logger       *zap.Logger
	now          func() time.Time
	sessionID    string
	consentOpts  consent.Options
	redirectURL  string

	state SessionState
}

// New returns an orchestrator in its initial state: nothing open, opt-in
// on, and a registration form with no identity data.
func New(gw clients.Gateway, s *schema.Schema, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:      gw,
		schema:       s,
		materializer: form.NewMaterializer(s),
		recorder:     nopRecorder{},
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("session_id", o.sessionID))
	if o.scheduler == nil {
		o.scheduler = analytics.NewScheduler(analytics.GatewayPublisher{Gateway: gw}, analytics.DefaultDelay,
			analytics.WithLogger(o.logger), analytics.WithSessionID(o.sessionID))
	}
	o.reconciler = identity.NewReconciler(gw, identity.WithLogger(o.logger))

	o.state = SessionState{
		SSOAccount:   models.IdentitySource{},
		Demographics: models.IdentitySource{},
		EmailOptIn:   true,
		Wizard:       models.WizardNone,
		Modal:        models.ModalNone,
	}
	o.state.Form = o.materializer.Materialize(o.input(registrationStep))
	return o
}

// Directive returns the current UI snapshot.
func (o *Orchestrator) Directive() Directive {
	return o.state.directive()
}

// State returns a copy of the full visitor state.
func (o *Orchestrator) State() SessionState {
	st := o.state
	st.Form = o.state.Form.Clone()
	st.SSOAccount = o.state.SSOAccount.Clone()
	st.Demographics = o.state.Demographics.Clone()
	return st
}

// Close cancels pending analytics and waits for publications in flight.
func (o *Orchestrator) Close() {
	o.scheduler.Close()
}

func (o *Orchestrator) input(step models.WizardState) form.Input {
	return form.Input{
		Step:         step,
		Session:      o.state.Session,
		SSOAccount:   o.state.SSOAccount,
		Demographics: o.state.Demographics,
	}
}

// formStep is the step the form is materialized for.
func (o *Orchestrator) formStep() models.WizardState {
	if o.state.Wizard == models.WizardNone {
		return registrationStep
	}
	return o.state.Wizard
}

func (o *Orchestrator) rematerialize() {
	o.state.Form = o.materializer.Materialize(o.input(o.formStep()))
}

// refreshForm regenerates the form and re-derives the email opt-in default.
// The default is always taken from the registration column set so a narrow
// step such as SIGN_IN does not hide the postal code.
func (o *Orchestrator) refreshForm(ctx context.Context) error {
	o.rematerialize()
	probe := o.state.Form
	if o.formStep() != registrationStep {
		probe = o.materializer.Materialize(o.input(registrationStep))
	}
	optIn, err := DefaultEmailOptIn(ctx, o.gateway, probe)
	if err != nil {
		return err
	}
	o.state.EmailOptIn = optIn
	return nil
}

// reset forgets the session and every identity source.
func (o *Orchestrator) reset(ctx context.Context) error {
	if err := o.gateway.ClearSession(ctx); err != nil {
		return err
	}
	o.state.Session = false
	o.state.InboundSSO = nil
	o.state.SSOAccount = models.IdentitySource{}
	o.state.Demographics = models.IdentitySource{}
	o.state.CameThroughLogin = false
	o.rematerialize()
	return nil
}

// openStep shows a wizard step, clearing any error and the loading flag.
// The form is regenerated when the step selects a different column set.
func (o *Orchestrator) openStep(step models.WizardState) {
	o.state.Error = nil
	o.state.Loading = false
	o.state.Wizard = step
	o.state.Modal = models.ModalRegistration

	want := columnNames(o.materializer.Columns(o.input(step)))
	if !slices.Equal(want, o.state.Form.Names()) {
		o.rematerialize()
	}
	o.logger.Info("Opened wizard step", zap.Stringer("step", step))
}

// clearError drops the error and falls back to whatever the wizard shows.
func (o *Orchestrator) clearError() {
	o.state.Error = nil
	if o.state.Modal != models.ModalError {
		return
	}
	if o.state.Wizard == models.WizardNone {
		o.state.Modal = models.ModalNone
	} else {
		o.state.Modal = models.ModalRegistration
	}
}

// fail surfaces err in the error modal and abandons pending analytics.
func (o *Orchestrator) fail(err error) *apierrors.APIError {
	apiErr := apierrors.FromError(err)
	o.state.Loading = false
	o.state.Error = apiErr
	o.state.Modal = models.ModalError
	o.scheduler.Cancel()
	o.logger.Error("Onboarding step failed", zap.Int("status_code", apiErr.StatusCode), zap.Error(err))
	return apiErr
}

func (o *Orchestrator) cacheBuster() string {
	return strconv.FormatInt(o.now().Unix(), 10)
}

func columnNames(cols []schema.Column) []string {
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		out = append(out, col.FieldName)
	}
	return out
}
