package onboarding

import (
	"context"
	"time"

	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// Outcome labels for recorded decisions.
const (
	OutcomeNoSession              = "NO_SESSION"
	OutcomeNeverEnrolled          = "NEVER_ENROLLED"
	OutcomeAlreadyEnrolledOnce    = "ALREADY_ENROLLED_ONCE"
	OutcomeNotMatchedOrIneligible = "NOT_MATCHED_OR_INELIGIBLE"
	OutcomeRedirect               = "REDIRECT"
	OutcomeError                  = "ERROR"
)

// Decision is the audit record of one finished login run.
type Decision struct {
	SessionID    string
	Trigger      Trigger
	Outcome      string
	MemberStatus models.MemberStatusCode
	Wizard       models.WizardState
	ErrorCode    int
	DecidedAt    time.Time
}

// Recorder persists decisions. A failing recorder never changes the
// outcome shown to the visitor.
type Recorder interface {
	RecordDecision(ctx context.Context, d Decision) error
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(context.Context, Decision) error { return nil }
