package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
)

// Context keys set for downstream handlers.
const (
	ContextKeyToken   = "visitor_token"
	ContextKeySubject = "visitor_subject"
	ContextKeyClaims  = "visitor_claims"
)

// Claims are the decoded claims of a verified visitor token.
type Claims map[string]any

// TokenVerifier verifies a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v oidcVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	return claims, nil
}

// Middleware checks visitor bearer tokens issued by the SSO provider.
type Middleware struct {
	Verifier TokenVerifier
	ClientID string
	Logger   *zap.Logger
}

// NewMiddleware creates an OIDC-based authentication middleware.
func NewMiddleware(ctx context.Context, providerURL, clientID string, logger *zap.Logger) (*Middleware, error) {
	provider, err := oidc.NewProvider(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	// The audience is checked by hand so both string and list audiences work.
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	return &Middleware{
		Verifier: oidcVerifier{verifier: verifier},
		ClientID: clientID,
		Logger:   logger,
	}, nil
}

// VisitorAuth validates an optional visitor token. A request without an
// Authorization header continues anonymously; a visitor only has a session
// once a valid token is presented.
func (m *Middleware) VisitorAuth() gin.HandlerFunc {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		tokenString, ok := BearerToken(authHeader)
		if !ok {
			c.Error(apierrors.NewUnauthorizedError("authorization header improperly formatted"))
			c.Abort()
			return
		}

		claims, err := m.Verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			logger.Warn("Token verification failed", zap.Error(err))
			c.Error(apierrors.NewUnauthorizedError("invalid token"))
			c.Abort()
			return
		}

		if m.ClientID != "" && !m.isAudienceValid(claims) {
			logger.Warn("Token audience validation failed", zap.String("client_id", m.ClientID), zap.Any("aud", claims["aud"]))
			c.Error(apierrors.NewForbiddenError("token not valid for this service"))
			c.Abort()
			return
		}

		c.Set(ContextKeyToken, tokenString)
		c.Set(ContextKeySubject, claims["sub"])
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// ForwardBearer stores the raw bearer token without verifying it, for
// deployments where the remote gateway is the only authority on the token.
// Requests without a well-formed bearer header continue anonymously.
func ForwardBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := BearerToken(c.GetHeader("Authorization")); ok {
			c.Set(ContextKeyToken, token)
		}
		c.Next()
	}
}

// BearerToken extracts the token of a "Bearer" Authorization header value.
func BearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// TokenFromContext returns the verified visitor token, if any.
func TokenFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}

// isAudienceValid checks if the ClientID is present in the 'aud' claim,
// which may be a string or a list.
func (m *Middleware) isAudienceValid(claims Claims) bool {
	aud, ok := claims["aud"]
	if !ok {
		return false
	}

	switch v := aud.(type) {
	case string:
		return v == m.ClientID
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s == m.ClientID {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == m.ClientID {
				return true
			}
		}
	}
	return false
}
