package onboarding

import (
	"context"

	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/analytics"
	"github.com/hkinc45/dev-kitchen-onboarding/consent"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// Login runs the onboarding pipeline. It is invoked once on mount and again
// whenever the visitor explicitly asks to sign in or register. A new run
// supersedes any landing event still pending from the previous one.
func (o *Orchestrator) Login(ctx context.Context, trigger Trigger) Directive {
	o.scheduler.Cancel()
	o.clearError()
	o.state.RedirectURL = ""

	log := o.logger.With(zap.Stringer("trigger", trigger))

	session, err := o.gateway.HasSession(ctx)
	if err != nil {
		o.finishWithError(ctx, trigger, err)
		return o.Directive()
	}
	o.state.Session = session

	if !session {
		if err := o.reset(ctx); err != nil {
			o.finishWithError(ctx, trigger, err)
			return o.Directive()
		}
		if trigger == TriggerUser {
			o.scheduler.Schedule(analytics.ClickRegistrationModal)
			o.openStep(models.WizardCreateAccountWithMembership)
		} else {
			o.scheduler.Schedule(analytics.LandDirect)
		}
		log.Info("No session, waiting for the visitor")
		o.record(ctx, trigger, OutcomeNoSession, "", 0)
		return o.Directive()
	}

	outcome, err := o.runSession(ctx)
	if err != nil {
		o.finishWithError(ctx, trigger, err)
		return o.Directive()
	}

	switch outcome.Kind {
	case consent.Redirect:
		// The visitor leaves for the app; nothing is shown.
		o.scheduler.Cancel()
		o.state.Loading = false
		o.state.RedirectURL = o.redirectURL
		log.Info("Member is enrolled, redirecting", zap.String("url", o.redirectURL))
	case consent.AlreadyEnrolledOnce:
		o.openStep(models.WizardPreferences)
	case consent.NotMatchedOrIneligible:
		o.state.Loading = false
		if err := o.reset(ctx); err != nil {
			o.finishWithError(ctx, trigger, err)
			return o.Directive()
		}
		o.openStep(models.WizardCreateAccountWithMembership)
	default:
		o.openStep(models.WizardCreateAccount)
	}

	o.record(ctx, trigger, outcome.Kind.String(), outcome.Status.Status, 0)
	return o.Directive()
}

// runSession walks the session-present half of the pipeline. Every failure
// is returned as-is; the caller decides how it is shown.
func (o *Orchestrator) runSession(ctx context.Context) (consent.Outcome, error) {
	o.state.Loading = true

	inbound, err := o.gateway.InboundSSO(ctx)
	if err != nil {
		return consent.Outcome{}, err
	}
	o.state.InboundSSO = inbound
	o.scheduler.Schedule(analytics.LandSSO)

	account, err := o.gateway.GetAccount(ctx)
	if err != nil {
		return consent.Outcome{}, err
	}
	o.state.SSOAccount = account
	o.state.Demographics = models.IdentitySource{}
	if err := o.refreshForm(ctx); err != nil {
		return consent.Outcome{}, err
	}

	status, err := o.gateway.GetMemberStatus(ctx, o.cacheBuster())
	if err != nil {
		return consent.Outcome{}, err
	}
	outcome, err := consent.Resolve(status, o.consentOpts)
	if err != nil {
		return consent.Outcome{}, err
	}
	o.logger.Debug("Resolved member status",
		zap.String("status", string(status.Status)),
		zap.Stringer("outcome", outcome.Kind))

	if outcome.Kind != consent.NeverEnrolled {
		return outcome, nil
	}

	demographics, err := o.gateway.GetPrimalDemographics(ctx)
	if err != nil {
		return consent.Outcome{}, err
	}
	o.state.Demographics = demographics
	if err := o.refreshForm(ctx); err != nil {
		return consent.Outcome{}, err
	}
	return outcome, nil
}

func (o *Orchestrator) finishWithError(ctx context.Context, trigger Trigger, err error) {
	apiErr := o.fail(err)
	o.record(ctx, trigger, OutcomeError, "", apiErr.StatusCode)
}

func (o *Orchestrator) record(ctx context.Context, trigger Trigger, outcome string, status models.MemberStatusCode, code int) {
	d := Decision{
		SessionID:    o.sessionID,
		Trigger:      trigger,
		Outcome:      outcome,
		MemberStatus: status,
		Wizard:       o.state.Wizard,
		ErrorCode:    code,
		DecidedAt:    o.now().UTC(),
	}
	if err := o.recorder.RecordDecision(ctx, d); err != nil {
		o.logger.Warn("Failed to record onboarding decision", zap.String("outcome", outcome), zap.Error(err))
	}
}
