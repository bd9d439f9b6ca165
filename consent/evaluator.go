// Package consent maps a member-status response to the next onboarding action.
package consent

import (
	"fmt"

	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// Kind tags an evaluation outcome.
type Kind int

const (
	// NeverEnrolled continues the pipeline into account creation.
	NeverEnrolled Kind = iota
	// AlreadyEnrolledOnce sends the visitor to the preferences step.
	AlreadyEnrolledOnce
	// NotMatchedOrIneligible resets the session and offers membership sign-up.
	NotMatchedOrIneligible
	// Redirect sends the visitor to the app. Nothing is shown.
	Redirect
)

var kindNames = map[Kind]string{
	NeverEnrolled:          "NEVER_ENROLLED",
	AlreadyEnrolledOnce:    "ALREADY_ENROLLED_ONCE",
	NotMatchedOrIneligible: "NOT_MATCHED_OR_INELIGIBLE",
	Redirect:               "REDIRECT",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the tagged result of evaluating a member status.
type Outcome struct {
	Kind   Kind
	Status models.MemberStatus
}

// Options tunes Resolve.
type Options struct {
	// ConflictCheckFirst runs the HIPAA conflict check before honouring an
	// AlreadyEnrolledOnce outcome.
	ConflictCheckFirst bool
}

// Evaluate applies the eligibility table to a member status. An unknown
// status code is an error.
func Evaluate(status models.MemberStatus) (Outcome, error) {
	out := Outcome{Status: status}
	switch status.Status {
	case models.StatusNotMatched, models.StatusIneligible:
		out.Kind = NotMatchedOrIneligible
	case models.StatusNotEnrolled:
		out.Kind = NeverEnrolled
	case models.StatusEligible:
		out.Kind = evaluateEligible(status.Consents)
	case models.StatusNotConsented:
		out.Kind = NeverEnrolled
		for _, c := range status.Consents {
			if c.Actioned() {
				out.Kind = AlreadyEnrolledOnce
				break
			}
		}
	default:
		return Outcome{}, apierrors.NewGenericFailure(fmt.Sprintf("unknown member status %q", status.Status))
	}
	return out, nil
}

// evaluateEligible lets an eligible member enroll only when every consent is
// optional and none has been acted upon; any other shape goes to the app.
func evaluateEligible(consents []models.Consent) Kind {
	if len(consents) == 0 {
		return Redirect
	}
	for _, c := range consents {
		if c.Required || c.Actioned() {
			return Redirect
		}
	}
	return NeverEnrolled
}

// HasConflictingHIPAA reports whether the consent types include both HIPAA
// and CLIENT_HIPAA.
func HasConflictingHIPAA(consents []models.Consent) bool {
	var hipaa, client bool
	for _, c := range consents {
		switch c.Type {
		case models.ConsentHIPAA:
			hipaa = true
		case models.ConsentClientHIPAA:
			client = true
		}
	}
	return hipaa && client
}

// Resolve evaluates status and then applies the HIPAA conflict check. The
// conflict check only runs for outcomes that continue the pipeline; by
// default AlreadyEnrolledOnce short-circuits before it.
func Resolve(status models.MemberStatus, opts Options) (Outcome, error) {
	out, err := Evaluate(status)
	if err != nil {
		return Outcome{}, err
	}
	switch out.Kind {
	case NotMatchedOrIneligible, Redirect:
		return out, nil
	case AlreadyEnrolledOnce:
		if !opts.ConflictCheckFirst {
			return out, nil
		}
	}
	if HasConflictingHIPAA(status.Consents) {
		return Outcome{}, apierrors.ErrConflictingConsent
	}
	return out, nil
}
