package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hkinc45/dev-kitchen-onboarding/clients"
	"github.com/hkinc45/dev-kitchen-onboarding/config"
	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
)

// TokenExchangeResponse represents the successful response from a token exchange request.
type TokenExchangeResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
}

// PerformTokenExchange performs a standard RFC 8693 token exchange, trading
// the visitor's SSO token for one the remote gateway accepts.
func PerformTokenExchange(ctx context.Context, client *http.Client, cfg config.TokenExchangeConfig, subjectToken string) (*TokenExchangeResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "urn:ietf:params:oauth:grant-type:token-exchange")
	data.Set("client_id", cfg.ClientID)
	data.Set("client_secret", cfg.ClientSecret)
	data.Set("subject_token", subjectToken)
	data.Set("subject_token_type", "urn:ietf:params:oauth:token-type:access_token")
	if cfg.Audience != "" {
		data.Set("audience", cfg.Audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token exchange request: %w", err)
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform token exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, apierrors.NewAPIError(resp.StatusCode,
			fmt.Sprintf("token exchange failed: %s %s", errResp.Error, errResp.Description))
	}

	var tokenResp TokenExchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode successful token exchange response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token exchange returned no access token")
	}
	return &tokenResp, nil
}

// NewExchanger returns a gateway token exchanger, or nil while exchange is
// not configured.
func NewExchanger(client *http.Client, cfg config.TokenExchangeConfig) clients.TokenExchanger {
	if cfg.TokenURL == "" {
		return nil
	}
	return func(ctx context.Context, subjectToken string) (string, error) {
		resp, err := PerformTokenExchange(ctx, client, cfg, subjectToken)
		if err != nil {
			return "", err
		}
		return resp.AccessToken, nil
	}
}
