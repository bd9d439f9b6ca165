// Package identity picks the email address a visitor should register with
// when several candidate sources disagree.
package identity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/models"
)

// EmailChecker reports whether an email already belongs to a registered account.
type EmailChecker interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// Reconciler searches candidate emails for one that already exists.
type Reconciler struct {
	checker EmailChecker
	logger  *zap.Logger
}

// NewReconciler returns a Reconciler backed by checker.
func NewReconciler(checker EmailChecker, opts ...Option) *Reconciler {
	r := &Reconciler{checker: checker, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile returns the first confirmed existing email. Demographic
// candidates are checked in order (the singular email, then the emails
// list) and stop at the first hit; the SSO account email is only a
// fallback when no demographic candidate exists. A failed existence check
// aborts the search with an error.
func (r *Reconciler) Reconcile(ctx context.Context, sso, demographics models.IdentitySource) (string, bool, error) {
	found, err := r.searchDemographics(ctx, demographics)
	if err != nil {
		return "", false, err
	}
	if found != "" {
		r.logger.Debug("Matched existing demographic email", zap.String("email", found))
		return found, true, nil
	}

	if fallback := sso.Email(); fallback != "" {
		r.logger.Debug("Falling back to SSO account email", zap.String("email", fallback))
		return fallback, true, nil
	}
	return "", false, nil
}

func (r *Reconciler) searchDemographics(ctx context.Context, demographics models.IdentitySource) (string, error) {
	primary := demographics.Email()
	if primary != "" {
		ok, err := r.checker.EmailExists(ctx, primary)
		if err != nil {
			return "", fmt.Errorf("identity: check %q: %w", primary, err)
		}
		if ok {
			return primary, nil
		}
	}

	for _, candidate := range demographics.Emails() {
		if candidate == "" || candidate == primary {
			continue
		}
		ok, err := r.checker.EmailExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("identity: check %q: %w", candidate, err)
		}
		if ok {
			return candidate, nil
		}
	}
	return "", nil
}
