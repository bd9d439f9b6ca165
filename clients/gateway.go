package clients

import (
	"context"

	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// ZipRecord is one match of a zip code lookup.
type ZipRecord struct {
	StateCode string `json:"state_code"`
}

// Gateway is the remote surface the onboarding pipeline talks to. The
// session itself is owned by the gateway; ClearSession is a local reset.
type Gateway interface {
	HasSession(ctx context.Context) (bool, error)
	ClearSession(ctx context.Context) error
	InboundSSO(ctx context.Context) (models.InboundSSO, error)
	GetAccount(ctx context.Context) (models.IdentitySource, error)
	GetPrimalDemographics(ctx context.Context) (models.IdentitySource, error)
	UpdateAccount(ctx context.Context, fields map[string]any) error
	EmailExists(ctx context.Context, email string) (bool, error)
	LookupZipcode(ctx context.Context, zipcode string) ([]ZipRecord, error)
	GetMemberStatus(ctx context.Context, cacheBuster string) (models.MemberStatus, error)
	PostAnalytics(ctx context.Context, event string) error
}
