package onboarding

import (
	"context"
	"sync"

	"github.com/hkinc45/dev-kitchen-onboarding/analytics"
	"github.com/hkinc45/dev-kitchen-onboarding/clients"
	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// fakeGateway answers from canned fields and records calls.
type fakeGateway struct {
	mu sync.Mutex

	session      bool
	sessionErr   error
	inbound      models.InboundSSO
	account      models.IdentitySource
	accountErr   error
	demographics models.IdentitySource
	status       models.MemberStatus
	statusErr    error
	existing     map[string]bool
	zips         map[string][]clients.ZipRecord
	zipErr       error
	updateErr    error

	calls        []string
	cacheBusters []string
	updates      []map[string]any
}

func (f *fakeGateway) called(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeGateway) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeGateway) HasSession(context.Context) (bool, error) {
	f.called("HasSession")
	return f.session, f.sessionErr
}

func (f *fakeGateway) ClearSession(context.Context) error {
	f.called("ClearSession")
	f.session = false
	return nil
}

func (f *fakeGateway) InboundSSO(context.Context) (models.InboundSSO, error) {
	f.called("InboundSSO")
	return f.inbound, nil
}

func (f *fakeGateway) GetAccount(context.Context) (models.IdentitySource, error) {
	f.called("GetAccount")
	return f.account.Clone(), f.accountErr
}

func (f *fakeGateway) GetPrimalDemographics(context.Context) (models.IdentitySource, error) {
	f.called("GetPrimalDemographics")
	return f.demographics.Clone(), nil
}

func (f *fakeGateway) UpdateAccount(_ context.Context, fields map[string]any) error {
	f.called("UpdateAccount")
	f.updates = append(f.updates, fields)
	return f.updateErr
}

func (f *fakeGateway) EmailExists(_ context.Context, email string) (bool, error) {
	f.called("EmailExists")
	return f.existing[email], nil
}

func (f *fakeGateway) LookupZipcode(_ context.Context, zip string) ([]clients.ZipRecord, error) {
	f.called("LookupZipcode")
	return f.zips[zip], f.zipErr
}

func (f *fakeGateway) GetMemberStatus(_ context.Context, cb string) (models.MemberStatus, error) {
	f.called("GetMemberStatus")
	f.cacheBusters = append(f.cacheBusters, cb)
	return f.status, f.statusErr
}

func (f *fakeGateway) PostAnalytics(context.Context, string) error {
	f.called("PostAnalytics")
	return nil
}

// eventLog collects published analytics events.
type eventLog struct {
	mu     sync.Mutex
	events []analytics.Event
	fired  chan struct{}
}

func newEventLog() *eventLog {
	return &eventLog{fired: make(chan struct{}, 16)}
}

func (l *eventLog) Publish(_ context.Context, env analytics.Envelope) error {
	l.mu.Lock()
	l.events = append(l.events, env.Event)
	l.mu.Unlock()
	l.fired <- struct{}{}
	return nil
}

func (l *eventLog) list() []analytics.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]analytics.Event(nil), l.events...)
}

type decisionLog struct {
	decisions []Decision
}

func (d *decisionLog) RecordDecision(_ context.Context, dec Decision) error {
	d.decisions = append(d.decisions, dec)
	return nil
}

func (d *decisionLog) last() Decision {
	if len(d.decisions) == 0 {
		return Decision{}
	}
	return d.decisions[len(d.decisions)-1]
}
