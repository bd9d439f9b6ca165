package onboarding

import (
	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// Trigger says what started a login run.
type Trigger int

const (
	// TriggerMount is the automatic run on page load.
	TriggerMount Trigger = iota
	// TriggerUser is an explicit user click.
	TriggerUser
)

func (t Trigger) String() string {
	if t == TriggerUser {
		return "user"
	}
	return "mount"
}

// SessionState is everything the orchestrator knows about one visitor.
type SessionState struct {
	Session          bool
	InboundSSO       models.InboundSSO
	SSOAccount       models.IdentitySource
	Demographics     models.IdentitySource
	CameThroughLogin bool

	Form       models.FormState
	EmailOptIn bool

	Wizard      models.WizardState
	Modal       models.ModalState
	Loading     bool
	Error       *apierrors.APIError
	RedirectURL string
}

// Directive is the UI-facing snapshot returned after every intent. The
// modal is derived: an error wins over an open wizard step.
type Directive struct {
	Wizard      models.WizardState  `json:"wizardState"`
	Modal       models.ModalState   `json:"modal"`
	Loading     bool                `json:"loading"`
	Error       *apierrors.APIError `json:"error,omitempty"`
	RedirectURL string              `json:"redirectUrl,omitempty"`
	Session     bool                `json:"session"`
	InboundSSO  models.InboundSSO   `json:"inboundSso,omitempty"`
	Columns     []string            `json:"columns"`
	Form        models.FormState    `json:"form"`
	EmailOptIn  bool                `json:"emailOptIn"`
}

func (s SessionState) directive() Directive {
	return Directive{
		Wizard:      s.Wizard,
		Modal:       s.Modal,
		Loading:     s.Loading,
		Error:       s.Error,
		RedirectURL: s.RedirectURL,
		Session:     s.Session,
		InboundSSO:  s.InboundSSO,
		Columns:     s.Form.Names(),
		Form:        s.Form.Clone(),
		EmailOptIn:  s.EmailOptIn,
	}
}
