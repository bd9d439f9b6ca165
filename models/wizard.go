package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WizardState names the active step of the registration modal.
type WizardState int

const (
	WizardNone                        WizardState = -1
	WizardSignIn                      WizardState = 0
	WizardCreateAccount               WizardState = 1
	WizardCreateAccountWithMembership WizardState = 2
	WizardPreferences                 WizardState = 3
)

var wizardNames = map[WizardState]string{
	WizardNone:                        "NONE",
	WizardSignIn:                      "SIGN_IN",
	WizardCreateAccount:               "CREATE_ACCOUNT",
	WizardCreateAccountWithMembership: "CREATE_ACCOUNT_WITH_MEMBERSHIP",
	WizardPreferences:                 "PREFERENCES",
}

func (w WizardState) String() string {
	if name, ok := wizardNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WizardState(%d)", int(w))
}

// ParseWizardState resolves a step name, case-insensitively.
func ParseWizardState(name string) (WizardState, error) {
	needle := strings.ToUpper(strings.TrimSpace(name))
	for state, candidate := range wizardNames {
		if candidate == needle {
			return state, nil
		}
	}
	return WizardNone, fmt.Errorf("unknown wizard state %q", name)
}

// MarshalJSON encodes the step by name.
func (w WizardState) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON decodes a step name.
func (w *WizardState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseWizardState(name)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// ModalState names the modal currently displayed over the landing page.
type ModalState string

const (
	ModalNone         ModalState = ""
	ModalRegistration ModalState = "REGISTRATION"
	ModalError        ModalState = "ERROR"
)
