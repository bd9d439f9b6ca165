package onboarding

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hkinc45/dev-kitchen-onboarding/analytics"
	"github.com/hkinc45/dev-kitchen-onboarding/clients"
	"github.com/hkinc45/dev-kitchen-onboarding/config"
	"github.com/hkinc45/dev-kitchen-onboarding/consent"
	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
	"github.com/hkinc45/dev-kitchen-onboarding/schema"
)

const appURL = "https://app.example.com/sso/init"

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	gw        *fakeGateway
	events    *eventLog
	decisions *decisionLog
	scheduler *analytics.Scheduler
	orch      *Orchestrator
}

func newHarness(t *testing.T, gw *fakeGateway, opts ...Option) *harness {
	t.Helper()
	s, err := schema.Build(config.Default().Product)
	require.NoError(t, err)

	h := &harness{gw: gw, events: newEventLog(), decisions: &decisionLog{}}
	// A long delay keeps dwell events pending so tests can inspect them.
	h.scheduler = analytics.NewScheduler(h.events, time.Hour)
	base := []Option{
		WithScheduler(h.scheduler),
		WithRecorder(h.decisions),
		WithClock(func() time.Time { return fixedNow }),
		WithSessionID("sid-test"),
		WithRedirectURL(appURL),
	}
	h.orch = New(gw, s, append(base, opts...)...)
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) pending() (analytics.Event, bool) {
	return h.scheduler.Pending()
}

func ssoAccount() models.IdentitySource {
	return models.IdentitySource{
		"firstName":  "Ada",
		"lastName":   "Lovelace",
		"email":      "ada@sso.example.com",
		"postalCode": "10001",
	}
}

func linkedDemographics() models.IdentitySource {
	return models.IdentitySource{
		"firstName":   "Ada",
		"lastName":    "Lovelace",
		"email":       "ada@member.example.com",
		"dateOfBirth": "1990-02-01",
		"postalCode":  "10001",
		"memberId":    "M-12345",
	}
}

func TestLogin_MountWithoutSession(t *testing.T) {
	h := newHarness(t, &fakeGateway{})

	d := h.orch.Login(context.Background(), TriggerMount)

	assert.Equal(t, models.WizardNone, d.Wizard)
	assert.Equal(t, models.ModalNone, d.Modal)
	assert.False(t, d.Loading)
	assert.Nil(t, d.Error)
	assert.Equal(t, 1, h.gw.callCount("ClearSession"))

	event, ok := h.pending()
	require.True(t, ok)
	assert.Equal(t, analytics.LandDirect, event)
	assert.Equal(t, OutcomeNoSession, h.decisions.last().Outcome)
}

func TestLogin_ExplicitWithoutSessionOpensMembership(t *testing.T) {
	h := newHarness(t, &fakeGateway{})

	d := h.orch.Login(context.Background(), TriggerUser)

	assert.Equal(t, models.WizardCreateAccountWithMembership, d.Wizard)
	assert.Equal(t, models.ModalRegistration, d.Modal)
	assert.Contains(t, d.Columns, "memberId")

	event, ok := h.pending()
	require.True(t, ok)
	assert.Equal(t, analytics.ClickRegistrationModal, event)
}

func TestLogin_NeverEnrolledOpensCreateAccount(t *testing.T) {
	gw := &fakeGateway{
		session:      true,
		inbound:      models.InboundSSO{"provider": "acme"},
		account:      ssoAccount(),
		demographics: linkedDemographics(),
		status:       models.MemberStatus{Status: models.StatusNotEnrolled},
	}
	h := newHarness(t, gw)

	d := h.orch.Login(context.Background(), TriggerMount)

	assert.Equal(t, models.WizardCreateAccount, d.Wizard)
	assert.Equal(t, models.ModalRegistration, d.Modal)
	assert.False(t, d.Loading)
	assert.True(t, d.Session)
	assert.Equal(t, models.InboundSSO{"provider": "acme"}, d.InboundSSO)
	assert.NotContains(t, d.Columns, "memberId")

	first, ok := d.Form.Field("firstName")
	require.True(t, ok)
	assert.Equal(t, "Ada", first.Value)
	assert.True(t, first.ReadOnly)

	email, ok := d.Form.Field(models.FieldEmail)
	require.True(t, ok)
	assert.Equal(t, "ada@member.example.com", email.Value)
	assert.False(t, email.ReadOnly)

	assert.Equal(t, []string{"1709294400"}, gw.cacheBusters)
	assert.Equal(t, 1, gw.callCount("GetPrimalDemographics"))

	event, ok := h.pending()
	require.True(t, ok)
	assert.Equal(t, analytics.LandSSO, event)

	dec := h.decisions.last()
	assert.Equal(t, consent.NeverEnrolled.String(), dec.Outcome)
	assert.Equal(t, models.StatusNotEnrolled, dec.MemberStatus)
	assert.Equal(t, "sid-test", dec.SessionID)
}

func TestLogin_EligibleRedirects(t *testing.T) {
	gw := &fakeGateway{
		session: true,
		account: ssoAccount(),
		status: models.MemberStatus{
			Status:   models.StatusEligible,
			Consents: []models.Consent{{Type: "TERMS", Required: true}},
		},
	}
	h := newHarness(t, gw)

	d := h.orch.Login(context.Background(), TriggerMount)

	assert.Equal(t, appURL, d.RedirectURL)
	assert.Equal(t, models.ModalNone, d.Modal)
	assert.Equal(t, models.WizardNone, d.Wizard)
	assert.False(t, d.Loading)
	assert.Nil(t, d.Error)
	assert.Zero(t, gw.callCount("GetPrimalDemographics"))

	_, ok := h.pending()
	assert.False(t, ok, "redirect abandons the landing event")
}

func TestLogin_ActionedConsentOpensPreferences(t *testing.T) {
	gw := &fakeGateway{
		session: true,
		account: ssoAccount(),
		status: models.MemberStatus{
			Status: models.StatusNotConsented,
			Consents: []models.Consent{
				{Type: "TERMS", ActionDt: &models.Timestamp{Time: fixedNow}},
			},
		},
	}
	h := newHarness(t, gw)

	d := h.orch.Login(context.Background(), TriggerMount)

	assert.Equal(t, models.WizardPreferences, d.Wizard)
	assert.Equal(t, models.ModalRegistration, d.Modal)
	assert.Equal(t, []string{models.FieldEmail}, d.Columns)
	assert.Zero(t, gw.callCount("GetPrimalDemographics"))
}

func TestLogin_NotMatchedResetsAndOffersMembership(t *testing.T) {
	gw := &fakeGateway{
		session: true,
		inbound: models.InboundSSO{"provider": "acme"},
		account: ssoAccount(),
		status:  models.MemberStatus{Status: models.StatusNotMatched},
	}
	h := newHarness(t, gw)

	d := h.orch.Login(context.Background(), TriggerMount)

	assert.Equal(t, models.WizardCreateAccountWithMembership, d.Wizard)
	assert.False(t, d.Session)
	assert.Nil(t, d.InboundSSO)
	assert.Equal(t, 1, gw.callCount("ClearSession"))

	first, ok := d.Form.Field("firstName")
	require.True(t, ok)
	assert.Nil(t, first.Value, "identity sources are cleared")

	st := h.orch.State()
	assert.True(t, st.SSOAccount.IsEmpty())
	assert.True(t, st.Demographics.IsEmpty())
}

func TestLogin_ConflictingHIPAA(t *testing.T) {
	gw := &fakeGateway{
		session: true,
		account: ssoAccount(),
		status: models.MemberStatus{
			Status: models.StatusNotEnrolled,
			Consents: []models.Consent{
				{Type: models.ConsentHIPAA},
				{Type: models.ConsentClientHIPAA},
			},
		},
	}
	h := newHarness(t, gw)

	d := h.orch.Login(context.Background(), TriggerMount)

	require.NotNil(t, d.Error)
	assert.Equal(t, apierrors.StatusConflictingConsent, d.Error.StatusCode)
	assert.Equal(t, models.ModalError, d.Modal)
	assert.False(t, d.Loading)
	_, ok := h.pending()
	assert.False(t, ok)
	assert.Equal(t, OutcomeError, h.decisions.last().Outcome)
	assert.Equal(t, apierrors.StatusConflictingConsent, h.decisions.last().ErrorCode)
}

func TestLogin_ConflictCheckFirstOverridesPreferences(t *testing.T) {
	actioned := &models.Timestamp{Time: fixedNow}
	gw := &fakeGateway{
		session: true,
		account: ssoAccount(),
		status: models.MemberStatus{
			Status: models.StatusNotConsented,
			Consents: []models.Consent{
				{Type: models.ConsentHIPAA, ActionDt: actioned},
				{Type: models.ConsentClientHIPAA},
			},
		},
	}

	h := newHarness(t, gw)
	d := h.orch.Login(context.Background(), TriggerMount)
	assert.Equal(t, models.WizardPreferences, d.Wizard)

	h = newHarness(t, gw, WithConsentOptions(consent.Options{ConflictCheckFirst: true}))
	d = h.orch.Login(context.Background(), TriggerMount)
	require.NotNil(t, d.Error)
	assert.Equal(t, apierrors.StatusConflictingConsent, d.Error.StatusCode)
}

func TestLogin_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakeGateway
		want int
	}{
		{
			name: "upstream status is kept",
			gw:   &fakeGateway{session: true, accountErr: apierrors.NewUnauthorizedError("expired")},
			want: http.StatusUnauthorized,
		},
		{
			name: "unstructured failure becomes generic",
			gw:   &fakeGateway{session: true, accountErr: errors.New("connection reset")},
			want: apierrors.StatusGenericFailure,
		},
		{
			name: "unknown member status",
			gw:   &fakeGateway{session: true, account: ssoAccount(), status: models.MemberStatus{Status: "PENDING"}},
			want: apierrors.StatusGenericFailure,
		},
		{
			name: "session probe failure",
			gw:   &fakeGateway{sessionErr: errors.New("dns")},
			want: apierrors.StatusGenericFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
					h := newHarness(t, tt.gw)

			d := h.orch.Login(context.Background(), TriggerMount)

			require.NotNil(t, d.Error)
			assert.Equal(t, tt.want, d.Error.StatusCode)
			assert.Equal(t, models.ModalError, d.Modal)
			assert.False(t, d.Loading)
		})
	}
}

func TestLogin_NewRunClearsPreviousError(t *testing.T) {
	gw := &fakeGateway{sessionErr: errors.New("flaky")}
	h := newHarness(t, gw)

	d := h.orch.Login(context.Background(), TriggerMount)
	require.NotNil(t, d.Error)

	gw.sessionErr = nil
	d = h.orch.Login(context.Background(), TriggerMount)
	assert.Nil(t, d.Error)
	assert.Equal(t, models.ModalNone, d.Modal)
}

func TestLogin_NewRunCancelsPendingEvent(t *testing.T) {
	h := newHarness(t, &fakeGateway{})

	h.orch.Login(context.Background(), TriggerMount)
	h.orch.Login(context.Background(), TriggerUser)

	event, ok := h.pending()
	require.True(t, ok)
	assert.Equal(t, analytics.ClickRegistrationModal, event)
}

func TestLogin_CaliforniaZipOptsOut(t *testing.T) {
	account := ssoAccount()
	account["postalCode"] = "94107"
	gw := &fakeGateway{
		session: true,
		account: account,
		status:  models.MemberStatus{Status: models.StatusNotMatched},
		zips:    map[string][]clients.ZipRecord{"94107": {{StateCode: "CA"}}},
	}
	h := newHarness(t, gw)

	h.orch.Login(context.Background(), TriggerMount)

	// The opt-in was derived while the SSO account was loaded.
	assert.Equal(t, 1, gw.callCount("LookupZipcode"))
	assert.False(t, h.orch.State().EmailOptIn)
}

func TestOpenSignIn(t *testing.T) {
	h := newHarness(t, &fakeGateway{})
	h.orch.Login(context.Background(), TriggerMount)

	d := h.orch.OpenSignIn()

	assert.Equal(t, models.WizardSignIn, d.Wizard)
	assert.Equal(t, []string{models.FieldEmail}, d.Columns)

	select {
	case <-h.events.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("OPEN_LOGIN_MODAL was not published")
	}
	assert.Equal(t, []analytics.Event{analytics.OpenLoginModal}, h.events.list())
	_, ok := h.pending()
	assert.False(t, ok, "opening a step abandons the landing event")
}

func TestOpenSignUp(t *testing.T) {

	h := newHarness(t, &fakeGateway{})
	d := h.orch.OpenSignUp()
	assert.Equal(t, models.WizardCreateAccountWithMembership, d.Wizard)

	gw := &fakeGateway{
		session:      true,
		account:      ssoAccount(),
		demographics: linkedDemographics(),
		status:       models.MemberStatus{Status: models.StatusNotEnrolled},
	}
	h = newHarness(t, gw)
	h.orch.Login(context.Background(), TriggerMount)
	h.orch.OpenSignIn()
	d = h.orch.OpenSignUp()
	assert.Equal(t, models.WizardCreateAccount, d.Wizard)
	assert.NotContains(t, d.Columns, "memberId")
}

func TestCloseModalKeepsIdentity(t *testing.T) {
	gw := &fakeGateway{
		session:      true,
		account:      ssoAccount(),
		demographics: linkedDemographics(),
		status:       models.MemberStatus{Status: models.StatusNotEnrolled},
	}
	h := newHarness(t, gw)
	h.orch.Login(context.Background(), TriggerMount)

	d := h.orch.CloseModal()
	assert.Equal(t, models.WizardNone, d.Wizard)
	assert.Equal(t, models.ModalNone, d.Modal)
	assert.False(t, h.orch.State().Demographics.IsEmpty())

	d = h.orch.OpenSignUp()
	first, ok := d.Form.Field("firstName")
	require.True(t, ok)
	assert.Equal(t, "Ada", first.Value)
}

func TestReconcileEmail(t *testing.T) {
	demographics := linkedDemographics()
	demographics["emails"] = []any{"old@member.example.com"}
	gw := &fakeGateway{
		session:      true,
		account:      ssoAccount(),
		demographics: demographics,
		status:       models.MemberStatus{Status: models.StatusNotEnrolled},
		existing:     map[string]bool{"old@member.example.com": true},
	}
	h := newHarness(t, gw)
	h.orch.Login(context.Background(), TriggerMount)

	d, found := h.orch.ReconcileEmail(context.Background())
	require.True(t, found)
	email, _ := d.Form.StringValue(models.FieldEmail)
	assert.Equal(t, "old@member.example.com", email)

	first, _ := d.Form.Field("firstName")
	assert.Equal(t, "Ada", first.Value, "only the email field is patched")
}

func TestSetFieldAndUpdateAccount(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, gw)
	h.orch.OpenSignUp()
	ctx := context.Background()

	_, err := h.orch.SetField(ctx, "gender", "female")
	require.NoError(t, err)
	_, err = h.orch.SetField(ctx, models.FieldDOB, "02/01/1990")
	require.NoError(t, err)
	d, err := h.orch.SetField(ctx, "postalCode", "12")
	require.NoError(t, err)
	zip, _ := d.Form.Field("postalCode")
	assert.True(t, zip.Error)

	_, err = h.orch.SetField(ctx, "favouriteColour", "blue")
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = h.orch.UpdateAccount(ctx, []string{"gender", models.FieldDOB, "postalCode"})
	require.NoError(t, err)
	require.Len(t, gw.updates, 1)
	assert.Equal(t, map[string]any{
		"gender":      "FEMALE",
		"dateOfBirth": int64(633830400000),
	}, gw.updates[0])
}

func TestUpdateAccountFailureShowsError(t *testing.T) {
	gw := &fakeGateway{updateErr: apierrors.NewAPIError(http.StatusBadGateway, "down")}
	h := newHarness(t, gw)
	h.orch.OpenSignUp()
	_, err := h.orch.SetField(context.Background(), "gender", "male")
	require.NoError(t, err)

	d, err := h.orch.UpdateAccount(context.Background(), []string{"gender"})
	require.Error(t, err)
	assert.Equal(t, models.ModalError, d.Modal)
	assert.Equal(t, http.StatusBadGateway, d.Error.StatusCode)
}
